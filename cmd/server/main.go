package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/natetr/CrankScribe/internal/config"
	"github.com/natetr/CrankScribe/internal/events"
	"github.com/natetr/CrankScribe/internal/llm"
	"github.com/natetr/CrankScribe/internal/metrics"
	"github.com/natetr/CrankScribe/internal/pipeline"
	"github.com/natetr/CrankScribe/internal/server"
	"github.com/natetr/CrankScribe/internal/session"
	"github.com/natetr/CrankScribe/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "crankscribe"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.Server.Port),
		slog.String("address", cfg.Server.Address),
		slog.Int("input_sample_rate", cfg.Audio.InputSampleRate),
		slog.Int("output_sample_rate", cfg.Audio.OutputSampleRate),
		slog.Duration("session_max_age", cfg.Session.GetMaxAge()),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.Bool("llm_enabled", cfg.LLM.Enabled),
		slog.Bool("events_enabled", cfg.Events.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize session store and its expiry sweep
	store := session.NewStore(logger, cfg.Session.GetMaxAge())
	go store.Run(ctx, cfg.Session.GetSweepInterval(), func(removed int) {
		if removed > 0 {
			appMetrics.RecordSessionsExpired(removed)
		}
		appMetrics.SetActiveSessions(store.ActiveCount())
	})
	logger.Info("Session store initialized",
		slog.Duration("max_age", cfg.Session.GetMaxAge()),
		slog.Duration("sweep_interval", cfg.Session.GetSweepInterval()),
	)

	// Initialize transcription client
	transClient, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Model:         cfg.Transcription.Model,
		Language:      cfg.Transcription.Language,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize LLM processing client (optional)
	var llmClient *llm.Client
	if cfg.LLM.Enabled {
		llmClient, err = llm.NewClient(llm.Config{
			Endpoint:  cfg.LLM.Endpoint,
			APIKey:    cfg.LLM.APIKey,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.LLM.GetTimeoutDuration(),
		}, logger)
		if err != nil {
			logger.Error("Failed to create LLM client", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Initialize transcript event publisher
	publisher := events.NewPublisher(events.Config{
		Enabled: cfg.Events.Enabled,
		Brokers: cfg.Events.Brokers,
		Topic:   cfg.Events.Topic,
	}, logger)

	// Wire the chunk pipeline
	orch, err := pipeline.NewOrchestrator(pipeline.Config{
		InputSampleRate:   cfg.Audio.InputSampleRate,
		OutputSampleRate:  cfg.Audio.OutputSampleRate,
		TranscribeTimeout: cfg.Transcription.GetTimeoutDuration(),
	}, store, transClient, publisher, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize and start HTTP API server
	httpServer := server.NewHTTPServer(cfg, logger, orch, store, llmClient, transClient, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeout())
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop the session sweep
	cancel()

	// Close outbound clients
	if err := transClient.Close(); err != nil {
		logger.Error("Error closing transcription client", slog.String("error", err.Error()))
	}
	if err := publisher.Close(); err != nil {
		logger.Error("Error closing event publisher", slog.String("error", err.Error()))
	}

	// Final statistics
	stats := transClient.GetStats()
	logger.Info("Final service statistics",
		slog.Int("remaining_sessions", store.ActiveCount()),
		slog.Uint64("transcription_requests", stats.TotalRequests),
		slog.Uint64("transcription_successes", stats.SuccessRequests),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
