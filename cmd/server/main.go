package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpetrenko/stt-stream-service/internal/config"
	"github.com/mpetrenko/stt-stream-service/internal/engine"
	"github.com/mpetrenko/stt-stream-service/internal/metrics"
	"github.com/mpetrenko/stt-stream-service/internal/server"
	"github.com/mpetrenko/stt-stream-service/internal/session"
	"github.com/mpetrenko/stt-stream-service/internal/transcode"
	"github.com/mpetrenko/stt-stream-service/internal/worker"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "stt-stream-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration; a missing file falls back to built-in defaults
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.Default()
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("bind_address", cfg.Server.Address),
		slog.Int("port", cfg.Server.Port),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("min_chunk_duration", cfg.Audio.MinChunkDuration),
		slog.Float64("overlap_duration", cfg.Audio.OverlapDuration),
		slog.Float64("max_buffer_duration", cfg.Audio.MaxBufferDuration),
		slog.String("engine_type", cfg.Engine.Type),
		slog.String("engine_endpoint", cfg.Engine.Endpoint),
		slog.String("engine_model", cfg.Engine.Model),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize the inference engine
	eng, err := newEngine(cfg)
	if err != nil {
		logger.Error("Failed to create inference engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Inference engine initialized",
		slog.String("type", cfg.Engine.Type),
		slog.String("model", eng.Model()),
	)

	// Initialize the worker pool
	pool, err := worker.NewPool(worker.Config{
		Workers:           cfg.Worker.PoolSize,
		SampleRate:        cfg.Audio.SampleRate,
		MinAudibleBytes:   cfg.Worker.MinAudibleBytes,
		InferenceTimeout:  cfg.Engine.GetTimeoutDuration(),
		NoSpeechThreshold: cfg.Worker.NoSpeechThreshold,
		Denylist:          cfg.Worker.Denylist,
	}, eng, logger)
	if err != nil {
		logger.Error("Failed to create worker pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	pool.SetQueueObserver(appMetrics.SetQueueDepth)

	// Initialize the transcoder for compressed one-shot uploads
	transcoder := transcode.NewTranscoder(
		cfg.Transcode.FFmpegPath,
		cfg.Audio.SampleRate,
		cfg.Transcode.GetTimeoutDuration(),
		logger,
	)

	registry := session.NewRegistry()

	httpServer := server.NewHTTPServer(cfg, logger, pool, transcoder, registry, appMetrics, cfg.Engine.Model)

	// Run until a shutdown signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Serve()
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Starting graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Stop(shutdownCtx)
	})

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	if err := g.Wait(); err != nil {
		logger.Error("Service error", slog.String("error", err.Error()))
	}

	// Drain in-flight inference after the server stops accepting work
	pool.Stop()

	if closer, ok := eng.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("Engine close failed", slog.String("error", err.Error()))
		}
	}

	stats := pool.Stats()
	logger.Info("Final statistics",
		slog.Uint64("chunks_processed", stats.Processed),
		slog.Uint64("chunks_failed", stats.Failed),
		slog.Uint64("silent_chunks", stats.Silent),
		slog.Int("open_sessions", registry.Len()),
	)

	logger.Info("Service stopped")
}

// newEngine builds the configured inference backend
func newEngine(cfg *config.Config) (engine.Engine, error) {
	switch cfg.Engine.Type {
	case "whisper":
		return engine.NewWhisperClient(engine.WhisperConfig{
			Endpoint:      cfg.Engine.Endpoint,
			APIKey:        cfg.Engine.APIKey,
			Model:         cfg.Engine.Model,
			Timeout:       cfg.Engine.GetTimeoutDuration(),
			MaxRetries:    cfg.Engine.MaxRetries,
			MaxConcurrent: cfg.Engine.MaxConcurrent,
		})
	case "openai":
		return engine.NewOpenAIClient(engine.OpenAIConfig{
			APIKey:  cfg.Engine.APIKey,
			BaseURL: cfg.Engine.Endpoint,
			Model:   cfg.Engine.Model,
		})
	default:
		return nil, fmt.Errorf("unknown engine type: %s", cfg.Engine.Type)
	}
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

	// Configure handler options
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
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
