package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptoDataPipeline/config"
	"cryptoDataPipeline/internal/adapters/logger"
	"cryptoDataPipeline/internal/app"
	"cryptoDataPipeline/internal/bootstrap"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, flush, err := logger.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer flush()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Wire repository, exchange client and pipeline stages
	components, err := bootstrap.New(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize pipeline")
		flush()
		log.Fatalf("FATAL: Failed to initialize pipeline: %v", err)
	}
	defer func() {
		if err := components.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLogger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	// 4. Run discovery, ingestion and indicators
	components.CheckExchange(ctx)
	_, runErr := components.Pipeline.Run(ctx)

	// Metrics are pushed even for failed runs so the gateway sees the failure counters.
	pushCtx, pushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	components.PushMetrics(pushCtx)
	pushCancel()

	if runErr != nil {
		if app.IsPartial(runErr) {
			appLogger.Warn(context.Background(), "Pipeline finished with failed pairs", map[string]interface{}{"error": runErr.Error()})
		} else {
			appLogger.Error(context.Background(), runErr, "Pipeline run failed")
		}
		components.Close()
		flush()
		os.Exit(1)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
