package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Sahaa21/MindMend/internal/metrics"
	"github.com/Sahaa21/MindMend/internal/microphone"
	"github.com/Sahaa21/MindMend/internal/server"
	"github.com/Sahaa21/MindMend/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API until SIGINT or SIGTERM.

Each session owns a wake word loop on the default microphone. With
listen.record_on_wake a question is recorded after the wake phrase and,
when the assistant is enabled, answered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("chunk_duration", cfg.Audio.ChunkDuration),
		slog.Float64("window_duration", cfg.Listen.WindowDuration),
		slog.Int("queue_size", cfg.Listen.QueueSize),
		slog.Any("wake_phrases", cfg.Wake.Phrases),
		slog.Bool("vad_enabled", cfg.VAD.Enabled),
		slog.String("transcription_provider", cfg.Transcription.Provider),
		slog.Bool("assistant_enabled", cfg.Assistant.Enabled),
		slog.String("fallback_language", cfg.Language.Fallback),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics on a private registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)
	logger.Info("Prometheus metrics initialized")

	eng, closeEngine, err := newEngine(cfg, appMetrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEngine(); err != nil {
			logger.Warn("Error closing transcription engine", slog.String("error", err.Error()))
		}
	}()

	detector, err := newDetector(cfg, eng, appMetrics, logger)
	if err != nil {
		return err
	}

	source := microphone.NewSource(logger)

	recorder, err := newRecorder(cfg, source, eng, logger)
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}

	pipeline, err := newAssistant(cfg, eng, logger)
	if err != nil {
		return err
	}

	sessionMgr, err := session.NewManager(session.Config{
		MaxSessions:    cfg.Listen.MaxSessions,
		Timeout:        cfg.Listen.GetSessionTimeout(),
		RecordOnWake:   cfg.Listen.RecordOnWake,
		RecordDuration: cfg.Listen.GetRecordDuration(),
	}, newLoopFactory(cfg, source, detector, appMetrics, logger), recorder, logger)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	sessionMgr.WithMetrics(appMetrics)

	deps := server.Dependencies{
		Sessions:    sessionMgr,
		Transcriber: eng,
		Metrics:     appMetrics,
		Gatherer:    registry,
	}
	if pipeline != nil {
		sessionMgr.WithResponder(pipeline)
		deps.Assistant = pipeline
	}

	logger.Info("Session manager initialized",
		slog.Int("max_sessions", cfg.Listen.MaxSessions),
		slog.Duration("session_timeout", cfg.Listen.GetSessionTimeout()),
		slog.Bool("record_on_wake", cfg.Listen.RecordOnWake),
	)

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg, deps, logger)
		if err := httpServer.Start(); err != nil {
			sessionMgr.Stop()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop every listen loop and the cleanup routine
	sessionMgr.Stop()

	// Get final statistics
	stats := eng.GetStats()
	logger.Info("Final transcription statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
		slog.Uint64("total_retries", stats.TotalRetries),
	)

	logger.Info("Service stopped")
	return nil
}
