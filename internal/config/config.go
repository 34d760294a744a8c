package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	Session       SessionConfig       `yaml:"session"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	LLM           LLMConfig           `yaml:"llm"`
	Events        EventsConfig        `yaml:"events"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int    `yaml:"port"`
	Address         string `yaml:"address"`
	ReadTimeout     int    `yaml:"read_timeout"`     // seconds
	WriteTimeout    int    `yaml:"write_timeout"`    // seconds
	MaxChunkBytes   int    `yaml:"max_chunk_bytes"`  // upload body limit
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
}

// AudioConfig contains audio processing parameters
type AudioConfig struct {
	InputSampleRate  int `yaml:"input_sample_rate"`
	OutputSampleRate int `yaml:"output_sample_rate"`
}

// SessionConfig contains session store parameters
type SessionConfig struct {
	MaxAgeMinutes        int `yaml:"max_age_minutes"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Language      string `yaml:"language"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// LLMConfig contains transcript post-processing configuration
type LLMConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	Timeout   int    `yaml:"timeout"` // seconds
}

// EventsConfig contains Kafka event publishing configuration
type EventsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}

	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", s.ReadTimeout)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	if s.MaxChunkBytes < 1024 {
		return fmt.Errorf("max_chunk_bytes must be at least 1024, got %d", s.MaxChunkBytes)
	}

	if s.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", s.ShutdownTimeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.InputSampleRate <= 0 {
		return fmt.Errorf("input_sample_rate must be positive, got %d", a.InputSampleRate)
	}

	if a.OutputSampleRate <= 0 {
		return fmt.Errorf("output_sample_rate must be positive, got %d", a.OutputSampleRate)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.MaxAgeMinutes < 1 {
		return fmt.Errorf("max_age_minutes must be at least 1, got %d", s.MaxAgeMinutes)
	}

	if s.SweepIntervalSeconds < 1 {
		return fmt.Errorf("sweep_interval_seconds must be at least 1, got %d", s.SweepIntervalSeconds)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates LLM configuration
func (l *LLMConfig) Validate() error {
	if !l.Enabled {
		return nil
	}

	if l.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty when llm is enabled")
	}

	if l.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty when llm is enabled")
	}

	if l.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative, got %d", l.MaxTokens)
	}

	if l.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %d", l.Timeout)
	}

	return nil
}

// Validate validates events configuration
func (e *EventsConfig) Validate() error {
	if !e.Enabled {
		return nil
	}

	if len(e.Brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty when events are enabled")
	}

	if e.Topic == "" {
		return fmt.Errorf("topic cannot be empty when events are enabled")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadTimeout returns the server read timeout as a time.Duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the server write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetShutdownTimeout returns the graceful shutdown budget as a time.Duration
func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// GetMaxAge returns the session max age as a time.Duration
func (s *SessionConfig) GetMaxAge() time.Duration {
	return time.Duration(s.MaxAgeMinutes) * time.Minute
}

// GetSweepInterval returns the expiry sweep interval as a time.Duration
func (s *SessionConfig) GetSweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the LLM request timeout as a time.Duration
func (l *LLMConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(l.Timeout) * time.Second
}
