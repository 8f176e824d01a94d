package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptoDataPipeline/internal/domain"
	"cryptoDataPipeline/internal/engine"
	"cryptoDataPipeline/internal/metrics"
	"cryptoDataPipeline/internal/ports"
)

// KlineFetcher retrieves klines newer than the stored watermark.
type KlineFetcher interface {
	FetchNew(ctx context.Context, symbol, interval string, pageLimit int) ([]*domain.Kline, error)
}

// KlineLoader appends klines to storage.
type KlineLoader interface {
	Load(ctx context.Context, symbol, interval string, klines []*domain.Kline) (int, error)
}

// IndicatorEngine derives and appends indicator points.
type IndicatorEngine interface {
	ComputeAndPersist(ctx context.Context) (engine.Report, error)
}

// PipelineConfig holds the stages and seeds of a Pipeline.
type PipelineConfig struct {
	Resolver      ports.DimensionResolver
	Fetcher       KlineFetcher
	Loader        KlineLoader
	Engine        IndicatorEngine
	SeedSymbols   []string
	SeedIntervals []string
	PageLimit     int
	Logger        ports.Logger
	Metrics       *metrics.Metrics
}

// Pipeline runs discovery, ingestion and indicator computation in order.
type Pipeline struct {
	resolver      ports.DimensionResolver
	fetcher       KlineFetcher
	loader        KlineLoader
	engine        IndicatorEngine
	seedSymbols   []string
	seedIntervals []string
	pageLimit     int
	logger        ports.Logger
	metrics       *metrics.Metrics
}

// PairResult is the ingestion outcome of one pair.
type PairResult struct {
	Pair     domain.Pair
	Fetched  int
	Inserted int
	Err      error
}

// IngestReport summarises stage 2.
type IngestReport struct {
	Results  []PairResult
	Inserted int
}

// Failed returns the pairs whose fetch or load failed.
func (r IngestReport) Failed() []domain.Pair {
	var out []domain.Pair
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Pair)
		}
	}
	return out
}

// RunReport summarises a full pass.
type RunReport struct {
	Pairs      []domain.Pair
	Ingest     IngestReport
	Indicators engine.Report
}

// NewPipeline validates cfg and returns a Pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Resolver == nil || cfg.Fetcher == nil || cfg.Loader == nil || cfg.Engine == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for Pipeline", ports.ErrConfigurationError)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewMetrics()
	}
	return &Pipeline{
		resolver:      cfg.Resolver,
		fetcher:       cfg.Fetcher,
		loader:        cfg.Loader,
		engine:        cfg.Engine,
		seedSymbols:   cfg.SeedSymbols,
		seedIntervals: cfg.SeedIntervals,
		pageLimit:     cfg.PageLimit,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}, nil
}

// DiscoverPairs resolves the configured seeds and returns the cross product
// of every known instrument and granularity.
func (p *Pipeline) DiscoverPairs(ctx context.Context) ([]domain.Pair, error) {
	defer p.metrics.ObserveStage("discover", time.Now())

	for _, s := range p.seedSymbols {
		if _, err := p.resolver.Resolve(ctx, domain.DimensionInstrument, s); err != nil {
			return nil, fmt.Errorf("resolve symbol %s: %w", s, err)
		}
	}
	for _, i := range p.seedIntervals {
		if _, err := p.resolver.Resolve(ctx, domain.DimensionGranularity, i); err != nil {
			return nil, fmt.Errorf("resolve interval %s: %w", i, err)
		}
	}

	symbols, err := p.resolver.ListNames(ctx, domain.DimensionInstrument)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	intervals, err := p.resolver.ListNames(ctx, domain.DimensionGranularity)
	if err != nil {
		return nil, fmt.Errorf("list intervals: %w", err)
	}

	pairs := make([]domain.Pair, 0, len(symbols)*len(intervals))
	for _, s := range symbols {
		for _, i := range intervals {
			pairs = append(pairs, domain.Pair{Symbol: s, Interval: i})
		}
	}
	p.logger.Info(ctx, "Pairs discovered", map[string]interface{}{
		"symbols":   len(symbols),
		"intervals": len(intervals),
		"pairs":     len(pairs),
	})
	return pairs, nil
}

// IngestPairs fetches and loads every pair in order. A failing pair is
// recorded in the report and does not stop the others; only cancellation
// aborts the stage.
func (p *Pipeline) IngestPairs(ctx context.Context, pairs []domain.Pair) (IngestReport, error) {
	defer p.metrics.ObserveStage("ingest", time.Now())

	var report IngestReport
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("ingest aborted before %s: %w: %w", pair, ports.ErrContextCanceled, err)
		}

		res := p.ingestPair(ctx, pair)
		report.Results = append(report.Results, res)
		report.Inserted += res.Inserted
		if res.Err != nil {
			p.metrics.PairsFailed.Inc()
			p.logger.Error(ctx, res.Err, "Pair ingestion failed", map[string]interface{}{"symbol": pair.Symbol, "interval": pair.Interval})
		}
	}

	p.logger.Info(ctx, "Ingestion finished", map[string]interface{}{
		"pairs":    len(pairs),
		"failed":   len(report.Failed()),
		"inserted": report.Inserted,
	})
	return report, nil
}

func (p *Pipeline) ingestPair(ctx context.Context, pair domain.Pair) PairResult {
	ctx = ports.WithLogFields(ctx, map[string]interface{}{"pair": pair.String()})
	res := PairResult{Pair: pair}
	klines, err := p.fetcher.FetchNew(ctx, pair.Symbol, pair.Interval, p.pageLimit)
	if err != nil {
		res.Err = err
		return res
	}
	res.Fetched = len(klines)
	res.Inserted, res.Err = p.loader.Load(ctx, pair.Symbol, pair.Interval, klines)
	return res
}

// ComputeIndicators runs the indicator engine over all stored partitions.
func (p *Pipeline) ComputeIndicators(ctx context.Context) (engine.Report, error) {
	defer p.metrics.ObserveStage("indicators", time.Now())
	return p.engine.ComputeAndPersist(ctx)
}

// Run executes the three stages. Indicators are computed even when some pairs
// failed to ingest; those pairs are then reported through an error wrapping
// ports.ErrPartialRun so the caller can schedule a retry.
func (p *Pipeline) Run(ctx context.Context) (RunReport, error) {
	var report RunReport
	started := time.Now()

	pairs, err := p.DiscoverPairs(ctx)
	if err != nil {
		return report, fmt.Errorf("discover pairs: %w", err)
	}
	report.Pairs = pairs

	report.Ingest, err = p.IngestPairs(ctx, pairs)
	if err != nil {
		return report, err
	}

	report.Indicators, err = p.ComputeIndicators(ctx)
	if err != nil {
		return report, fmt.Errorf("compute indicators: %w", err)
	}

	if failed := report.Ingest.Failed(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, f := range failed {
			names[i] = f.String()
		}
		return report, fmt.Errorf("%w: %d of %d pairs failed: %s", ports.ErrPartialRun, len(failed), len(pairs), strings.Join(names, ", "))
	}

	p.metrics.LastSuccessful.SetToCurrentTime()
	p.logger.Info(ctx, "Pipeline run completed", map[string]interface{}{
		"pairs":      len(pairs),
		"inserted":   report.Ingest.Inserted,
		"indicators": report.Indicators.TotalPoints(),
		"duration":   time.Since(started).String(),
	})
	return report, nil
}

// IsPartial reports whether err came from a run where only some pairs failed.
func IsPartial(err error) bool {
	return errors.Is(err, ports.ErrPartialRun)
}
