package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			Address:         "0.0.0.0",
			ReadTimeout:     30,
			WriteTimeout:    120,
			MaxChunkBytes:   1 << 20,
			ShutdownTimeout: 10,
		},
		Audio: AudioConfig{
			InputSampleRate:  8000,
			OutputSampleRate: 16000,
		},
		Session: SessionConfig{
			MaxAgeMinutes:        30,
			SweepIntervalSeconds: 60,
		},
		Transcription: TranscriptionConfig{
			Endpoint:      "https://api.example.com/v1/audio/transcriptions",
			APIKey:        "test-key",
			Model:         "whisper-1",
			Language:      "en",
			Timeout:       60,
			MaxRetries:    3,
			MaxConcurrent: 10,
		},
		LLM: LLMConfig{
			Enabled:   true,
			Endpoint:  "https://api.example.com/v1/chat/completions",
			APIKey:    "test-key",
			Model:     "gpt-4o-mini",
			MaxTokens: 500,
			Timeout:   30,
		},
		Events: EventsConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string // empty means the config must validate
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:     "invalid server port",
			mutate:   func(c *Config) { c.Server.Port = 70000 },
			errorMsg: "port must be between 1 and 65535",
		},
		{
			name:     "empty bind address",
			mutate:   func(c *Config) { c.Server.Address = "" },
			errorMsg: "address cannot be empty",
		},
		{
			name:     "invalid input sample rate",
			mutate:   func(c *Config) { c.Audio.InputSampleRate = 0 },
			errorMsg: "input_sample_rate must be positive",
		},
		{
			name:     "invalid output sample rate",
			mutate:   func(c *Config) { c.Audio.OutputSampleRate = -1 },
			errorMsg: "output_sample_rate must be positive",
		},
		{
			name:     "session max age too small",
			mutate:   func(c *Config) { c.Session.MaxAgeMinutes = 0 },
			errorMsg: "max_age_minutes must be at least 1",
		},
		{
			name:     "missing transcription endpoint",
			mutate:   func(c *Config) { c.Transcription.Endpoint = "" },
			errorMsg: "endpoint cannot be empty",
		},
		{
			name:     "missing transcription api key",
			mutate:   func(c *Config) { c.Transcription.APIKey = "" },
			errorMsg: "api_key cannot be empty",
		},
		{
			name:     "negative transcription retries",
			mutate:   func(c *Config) { c.Transcription.MaxRetries = -1 },
			errorMsg: "max_retries cannot be negative",
		},
		{
			name:     "llm enabled without endpoint",
			mutate:   func(c *Config) { c.LLM.Endpoint = "" },
			errorMsg: "endpoint cannot be empty when llm is enabled",
		},
		{
			name: "llm disabled skips validation",
			mutate: func(c *Config) {
				c.LLM = LLMConfig{Enabled: false}
			},
		},
		{
			name: "events enabled without brokers",
			mutate: func(c *Config) {
				c.Events = EventsConfig{Enabled: true, Topic: "transcripts.final"}
			},
			errorMsg: "brokers cannot be empty when events are enabled",
		},
		{
			name: "events enabled without topic",
			mutate: func(c *Config) {
				c.Events = EventsConfig{Enabled: true, Brokers: []string{"localhost:9092"}}
			},
			errorMsg: "topic cannot be empty when events are enabled",
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.Logging.Level = "trace" },
			errorMsg: "level must be one of",
		},
		{
			name:     "invalid log format",
			mutate:   func(c *Config) { c.Logging.Format = "xml" },
			errorMsg: "format must be 'json' or 'text'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Expected valid config but got error: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Expected error containing '%s' but got none", tt.errorMsg)
			} else if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name       string
		configYAML string
		errorMsg   string
	}{
		{
			name: "complete valid config",
			configYAML: `
server:
  port: 8080
  address: "0.0.0.0"
  read_timeout: 30
  write_timeout: 120
  max_chunk_bytes: 1048576
  shutdown_timeout: 10
audio:
  input_sample_rate: 8000
  output_sample_rate: 16000
session:
  max_age_minutes: 30
  sweep_interval_seconds: 60
transcription:
  endpoint: "https://api.example.com/v1/audio/transcriptions"
  api_key: "test-key"
  model: "whisper-1"
  language: "en"
  timeout: 60
  max_retries: 3
  max_concurrent: 10
llm:
  enabled: false
events:
  enabled: false
logging:
  level: "info"
  format: "json"
  output: "stdout"
`,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
server:
  port: not_a_number
`,
			errorMsg: "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
server:
  port: 8080
  # missing address
`,
			errorMsg: "address cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Error("Expected config to be loaded but got nil")
				}
				return
			}
			if err == nil {
				t.Error("Expected error but got none")
			} else if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	server := ServerConfig{ReadTimeout: 30, WriteTimeout: 120, ShutdownTimeout: 10}
	if server.GetReadTimeout() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", server.GetReadTimeout())
	}
	if server.GetWriteTimeout() != 120*time.Second {
		t.Errorf("Expected 120 seconds, got %v", server.GetWriteTimeout())
	}
	if server.GetShutdownTimeout() != 10*time.Second {
		t.Errorf("Expected 10 seconds, got %v", server.GetShutdownTimeout())
	}

	session := SessionConfig{MaxAgeMinutes: 30, SweepIntervalSeconds: 60}
	if session.GetMaxAge() != 30*time.Minute {
		t.Errorf("Expected 30 minutes, got %v", session.GetMaxAge())
	}
	if session.GetSweepInterval() != time.Minute {
		t.Errorf("Expected 60 seconds, got %v", session.GetSweepInterval())
	}

	transcription := TranscriptionConfig{Timeout: 60}
	if transcription.GetTimeoutDuration() != time.Minute {
		t.Errorf("Expected 60 seconds, got %v", transcription.GetTimeoutDuration())
	}

	llm := LLMConfig{Timeout: 30}
	if llm.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", llm.GetTimeoutDuration())
	}
}
