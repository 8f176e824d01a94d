package ingest

import (
	"context"
	"fmt"

	"cryptoDataPipeline/internal/domain"
	"cryptoDataPipeline/internal/metrics"
	"cryptoDataPipeline/internal/ports"
)

// LoaderConfig holds the dependencies of a Loader.
type LoaderConfig struct {
	Resolver ports.DimensionResolver
	Writer   ports.KlineWriter
	Logger   ports.Logger
	Metrics  *metrics.Metrics
}

// Loader appends fetched klines to storage without ever overwriting a row.
type Loader struct {
	resolver ports.DimensionResolver
	writer   ports.KlineWriter
	logger   ports.Logger
	metrics  *metrics.Metrics
}

// NewLoader validates cfg and returns a Loader.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.Resolver == nil || cfg.Writer == nil {
		return nil, fmt.Errorf("%w: resolver and writer are required", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewMetrics()
	}
	return &Loader{
		resolver: cfg.Resolver,
		writer:   cfg.Writer,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}, nil
}

// Load resolves the pair's dimension ids and inserts the klines, skipping
// those already stored. It returns the number of rows actually inserted.
// An empty batch is a no-op and does not create dimension rows.
func (l *Loader) Load(ctx context.Context, symbol, interval string, klines []*domain.Kline) (int, error) {
	if len(klines) == 0 {
		return 0, nil
	}
	for i, k := range klines {
		if k == nil {
			return 0, fmt.Errorf("%w: nil kline at index %d", ports.ErrInvalidRequest, i)
		}
		if (k.Symbol != "" && k.Symbol != symbol) || (k.Interval != "" && k.Interval != interval) {
			return 0, fmt.Errorf("%w: kline %s-%s does not belong to %s-%s", ports.ErrInvalidRequest, k.Symbol, k.Interval, symbol, interval)
		}
	}

	instrumentID, err := l.resolver.Resolve(ctx, domain.DimensionInstrument, symbol)
	if err != nil {
		return 0, fmt.Errorf("load %s-%s: %w", symbol, interval, err)
	}
	granularityID, err := l.resolver.Resolve(ctx, domain.DimensionGranularity, interval)
	if err != nil {
		return 0, fmt.Errorf("load %s-%s: %w", symbol, interval, err)
	}

	inserted, err := l.writer.InsertKlines(ctx, instrumentID, granularityID, klines)
	if err != nil {
		return 0, fmt.Errorf("load %s-%s: %w", symbol, interval, err)
	}
	l.metrics.KlinesInserted.Add(float64(inserted))

	l.logger.Info(ctx, "Klines loaded", map[string]interface{}{
		"symbol":   symbol,
		"interval": interval,
		"received": len(klines),
		"inserted": inserted,
		"skipped":  len(klines) - inserted,
	})
	return inserted, nil
}
