package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptoDataPipeline/config"
	"cryptoDataPipeline/internal/adapters/logger"
	"cryptoDataPipeline/internal/bootstrap"
	"cryptoDataPipeline/internal/engine"
)

func main() {
	modeFlag := flag.String("mode", "", "override INDICATOR_MODE (incremental or full)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	mode := cfg.IndicatorMode
	if *modeFlag != "" {
		if mode, err = engine.ParseMode(*modeFlag); err != nil {
			log.Fatalf("FATAL: %v", err)
		}
	}

	// 2. Initialize Logger
	appLogger, flush, err := logger.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer flush()

	// 3. Wire components
	components, err := bootstrap.NewWithMode(cfg, appLogger, mode)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize components")
		flush()
		log.Fatalf("FATAL: Failed to initialize components: %v", err)
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Compute indicators for every stored partition
	report, runErr := components.Pipeline.ComputeIndicators(ctx)
	if runErr != nil {
		appLogger.Error(ctx, runErr, "Indicator computation failed")
	} else {
		appLogger.Info(ctx, "Indicator computation finished", map[string]interface{}{
			"mode":      string(mode),
			"processed": report.PartitionsProcessed,
			"rejected":  report.PartitionsRejected,
			"written":   report.TotalPoints(),
		})
	}

	pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	components.PushMetrics(pushCtx)
	cancel()

	if runErr != nil {
		components.Close()
		flush()
		os.Exit(1)
	}
}
