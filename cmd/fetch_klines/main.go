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
	"cryptoDataPipeline/internal/ports"
	"cryptoDataPipeline/internal/utils"
)

func main() {
	exportSymbol := flag.String("export-symbol", "", "write this symbol's stored klines to CSV after fetching")
	exportInterval := flag.String("export-interval", "1h", "interval of the exported klines")
	exportDir := flag.String("export-dir", "data", "directory for CSV exports")
	flag.Parse()

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

	// 3. Wire components
	components, err := bootstrap.New(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize components")
		flush()
		log.Fatalf("FATAL: Failed to initialize components: %v", err)
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Discover pairs and ingest new klines
	components.CheckExchange(ctx)
	pairs, err := components.Pipeline.DiscoverPairs(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Error discovering pairs")
		components.Close()
		flush()
		log.Fatalf("Error discovering pairs: %v", err)
	}
	report, ingestErr := components.Pipeline.IngestPairs(ctx, pairs)
	if ingestErr != nil {
		appLogger.Error(ctx, ingestErr, "Ingestion aborted")
	}
	appLogger.Info(ctx, "Fetched klines", map[string]interface{}{"pairs": len(pairs), "inserted": report.Inserted, "failed": len(report.Failed())})

	// 5. Optional CSV export of one pair
	if *exportSymbol != "" {
		if err := export(ctx, components, *exportSymbol, *exportInterval, *exportDir, appLogger); err != nil {
			appLogger.Error(ctx, err, "Error writing CSV")
		}
	}

	pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	components.PushMetrics(pushCtx)
	cancel()

	if ingestErr != nil || len(report.Failed()) > 0 {
		components.Close()
		flush()
		os.Exit(1)
	}
}

func export(ctx context.Context, c *bootstrap.Components, symbol, interval, dir string, l ports.Logger) error {
	klines, err := c.Repository.KlinesForPair(ctx, symbol, interval)
	if err != nil {
		return err
	}
	if len(klines) == 0 {
		l.Info(ctx, "Nothing to export", map[string]interface{}{"symbol": symbol, "interval": interval})
		return nil
	}
	filename := utils.ExportFileName(dir, symbol, interval, klines[0].OpenTime, klines[len(klines)-1].CloseTime)
	if err := utils.WriteKlinesToCSV(klines, filename); err != nil {
		return err
	}
	l.Info(ctx, "Saved to", map[string]interface{}{"filename": filename, "rows": len(klines)})
	return nil
}
