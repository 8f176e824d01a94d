// Package engine derives indicator points from stored klines and appends the
// ones not yet persisted.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cryptoDataPipeline/internal/domain"
	"cryptoDataPipeline/internal/indicators"
	"cryptoDataPipeline/internal/metrics"
	"cryptoDataPipeline/internal/ports"
)

// Mode selects how much of a partition is recomputed.
type Mode string

const (
	// ModeIncremental recomputes only positions after the last persisted point.
	ModeIncremental Mode = "incremental"
	// ModeFull recomputes the whole series and relies on the anti-join.
	ModeFull Mode = "full"
)

// PartialPolicy decides what happens at positions before the first full window.
type PartialPolicy string

const (
	// PartialEmit writes expanding-prefix values.
	PartialEmit PartialPolicy = "emit"
	// PartialSuppress writes nothing until the window is full.
	PartialSuppress PartialPolicy = "suppress"
)

const (
	DefaultWindow  = 14
	DefaultWorkers = 4
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeIncremental, ModeFull:
		return m, nil
	case "":
		return ModeIncremental, nil
	default:
		return "", fmt.Errorf("%w: unknown indicator mode %q", ports.ErrConfigurationError, s)
	}
}

// ParsePartialPolicy converts a configuration string into a PartialPolicy.
func ParsePartialPolicy(s string) (PartialPolicy, error) {
	switch p := PartialPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PartialEmit, PartialSuppress:
		return p, nil
	case "":
		return PartialEmit, nil
	default:
		return "", fmt.Errorf("%w: unknown partial window policy %q", ports.ErrConfigurationError, s)
	}
}

// Config holds the dependencies and settings of an Engine.
type Config struct {
	Repository    ports.IndicatorRepository
	Window        int
	Mode          Mode
	PartialPolicy PartialPolicy
	Workers       int
	Logger        ports.Logger
	Metrics       *metrics.Metrics
}

// Report summarises one ComputeAndPersist call.
type Report struct {
	PartitionsProcessed int
	PartitionsRejected  int
	PartitionsFailed    int
	PointsWritten       map[domain.IndicatorKind]int
}

// TotalPoints returns the number of points written across all kinds.
func (r Report) TotalPoints() int {
	total := 0
	for _, n := range r.PointsWritten {
		total += n
	}
	return total
}

// Engine computes SMA, RSI and Bollinger Bands per partition.
type Engine struct {
	repo       ports.IndicatorRepository
	indicators []indicators.Indicator
	window     int
	warmup     int
	mode       Mode
	partial    PartialPolicy
	workers    int
	logger     ports.Logger
	metrics    *metrics.Metrics
}

// New validates cfg and returns an Engine. Zero values fall back to defaults.
func New(cfg Config) (*Engine, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("%w: indicator repository is required", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Window < 1 {
		return nil, fmt.Errorf("%w: window must be positive, got %d", ports.ErrConfigurationError, cfg.Window)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	partial, err := ParsePartialPolicy(string(cfg.PartialPolicy))
	if err != nil {
		return nil, err
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewMetrics()
	}

	inds := indicators.Standard(cfg.Window)
	warmup := 0
	for _, ind := range inds {
		if n := ind.RequiredDataPoints(); n > warmup {
			warmup = n
		}
	}

	return &Engine{
		repo:       cfg.Repository,
		indicators: inds,
		window:     cfg.Window,
		warmup:     warmup,
		mode:       mode,
		partial:    partial,
		workers:    cfg.Workers,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}, nil
}

// ComputeAndPersist processes every partition that has klines. Failures are
// scoped to their partition: out-of-order klines count as rejected, other
// errors count as failed and are joined into the returned error once the
// remaining partitions have run. Only cancellation of ctx stops the stage.
func (e *Engine) ComputeAndPersist(ctx context.Context) (Report, error) {
	report := Report{PointsWritten: make(map[domain.IndicatorKind]int)}

	partitions, err := e.repo.ListPartitions(ctx)
	if err != nil {
		return report, fmt.Errorf("list partitions: %w", err)
	}
	e.logger.Info(ctx, "Computing indicators", map[string]interface{}{
		"partitions": len(partitions),
		"window":     e.window,
		"mode":       string(e.mode),
		"partial":    string(e.partial),
	})

	var (
		mu     sync.Mutex
		failed []error
		g      errgroup.Group
	)
	g.SetLimit(e.workers)

	for _, p := range partitions {
		if ctx.Err() != nil {
			break
		}
		p := p
		g.Go(func() error {
			pctx := ports.WithLogFields(ctx, map[string]interface{}{"instrument_id": p.InstrumentID, "granularity_id": p.GranularityID})
			written, err := e.computePartition(pctx, p)
			switch {
			case errors.Is(err, ports.ErrOutOfOrderKlines):
				e.logger.Error(pctx, err, "Partition rejected")
				e.metrics.PartitionsRejected.Inc()
				mu.Lock()
				report.PartitionsRejected++
				mu.Unlock()
				return nil
			case err != nil:
				e.logger.Error(pctx, err, "Partition failed")
				mu.Lock()
				report.PartitionsFailed++
				failed = append(failed, fmt.Errorf("partition %d/%d: %w", p.InstrumentID, p.GranularityID, err))
				mu.Unlock()
				return nil
			}

			mu.Lock()
			report.PartitionsProcessed++
			for kind, n := range written {
				report.PointsWritten[kind] += n
			}
			mu.Unlock()
			for kind, n := range written {
				e.metrics.IndicatorPointsWritten.WithLabelValues(string(kind)).Add(float64(n))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("indicator stage aborted: %w: %w", ports.ErrContextCanceled, err)
	}
	if len(failed) > 0 {
		return report, errors.Join(failed...)
	}

	e.logger.Info(ctx, "Indicators computed", map[string]interface{}{
		"processed": report.PartitionsProcessed,
		"rejected":  report.PartitionsRejected,
		"written":   report.TotalPoints(),
	})
	return report, nil
}

func (e *Engine) computePartition(ctx context.Context, p domain.Partition) (map[domain.IndicatorKind]int, error) {
	var after time.Time
	if e.mode == ModeIncremental {
		latest, ok, err := e.repo.LatestIndicatorTime(ctx, p)
		if err != nil {
			return nil, err
		}
		if ok {
			after = latest
		}
	}

	klines, err := e.repo.PartitionKlines(ctx, p, after, e.window)
	if err != nil {
		return nil, err
	}
	if err := validateOrder(klines); err != nil {
		return nil, err
	}

	candidates, err := e.candidates(ctx, p, klines, after)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	existing, err := e.repo.IndicatorKeys(ctx, p, candidates[0].Timestamp)
	if err != nil {
		return nil, err
	}
	novel := candidates[:0]
	for _, pt := range candidates {
		if _, ok := existing[pt.Key()]; !ok {
			novel = append(novel, pt)
		}
	}
	if len(novel) == 0 {
		return nil, nil
	}

	if _, err := e.repo.InsertIndicatorPoints(ctx, novel); err != nil {
		return nil, err
	}
	written := make(map[domain.IndicatorKind]int)
	for _, pt := range novel {
		written[pt.Kind]++
	}
	e.logger.Debug(ctx, "Indicator points appended", map[string]interface{}{"points": len(novel)})
	return written, nil
}

// candidates returns the defined points closing after the given time, in
// position order and IndicatorKinds order within a position.
func (e *Engine) candidates(ctx context.Context, p domain.Partition, klines []*domain.Kline, after time.Time) ([]domain.IndicatorPoint, error) {
	series := make(map[domain.IndicatorKind]indicators.Series, len(domain.IndicatorKinds))
	for _, ind := range e.indicators {
		out, err := ind.Calculate(ctx, klines)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ind.Name(), err)
		}
		for kind, s := range out {
			series[kind] = s
		}
	}

	var points []domain.IndicatorPoint
	for i, k := range klines {
		if e.partial == PartialSuppress && i < e.warmup-1 {
			continue
		}
		if !after.IsZero() && !k.CloseTime.After(after) {
			continue
		}
		for _, kind := range domain.IndicatorKinds {
			s, ok := series[kind]
			if !ok || !s[i].Valid {
				continue
			}
			points = append(points, domain.IndicatorPoint{
				Partition: p,
				Kind:      kind,
				Timestamp: k.CloseTime,
				Value:     s[i].Value,
			})
		}
	}
	return points, nil
}

func validateOrder(klines []*domain.Kline) error {
	for i := 1; i < len(klines); i++ {
		prev, cur := klines[i-1], klines[i]
		if !cur.OpenTime.After(prev.OpenTime) || !cur.CloseTime.After(prev.CloseTime) {
			return fmt.Errorf("%w: kline %d (open %s) does not follow open %s", ports.ErrOutOfOrderKlines, i,
				cur.OpenTime.UTC().Format(time.RFC3339), prev.OpenTime.UTC().Format(time.RFC3339))
		}
	}
	return nil
}
