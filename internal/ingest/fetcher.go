// Package ingest pulls new klines from the exchange and appends them to storage.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptoDataPipeline/internal/domain"
	"cryptoDataPipeline/internal/metrics"
	"cryptoDataPipeline/internal/ports"
	"cryptoDataPipeline/internal/retry"
)

// DefaultPageLimit is the page size used when none is configured.
const DefaultPageLimit = 1000

// FetcherConfig holds the dependencies and tuning of a Fetcher.
type FetcherConfig struct {
	Exchange   ports.ExchangeClient
	Watermarks ports.WatermarkReader
	Retry      retry.Policy
	PageLimit  int
	MaxPages   int // 0 means follow pagination until the exchange runs dry
	Logger     ports.Logger
	Metrics    *metrics.Metrics
}

// Fetcher retrieves the klines newer than what storage already holds.
type Fetcher struct {
	exchange   ports.ExchangeClient
	watermarks ports.WatermarkReader
	retry      retry.Policy
	pageLimit  int
	maxPages   int
	logger     ports.Logger
	metrics    *metrics.Metrics
}

// NewFetcher validates cfg and returns a Fetcher.
func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	if cfg.Exchange == nil {
		return nil, fmt.Errorf("%w: exchange client is required", ports.ErrConfigurationError)
	}
	if cfg.Watermarks == nil {
		return nil, fmt.Errorf("%w: watermark reader is required", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultPageLimit
	}
	if cfg.MaxPages < 0 {
		return nil, fmt.Errorf("%w: max pages must not be negative", ports.ErrConfigurationError)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewMetrics()
	}

	f := &Fetcher{
		exchange:   cfg.Exchange,
		watermarks: cfg.Watermarks,
		retry:      cfg.Retry,
		pageLimit:  cfg.PageLimit,
		maxPages:   cfg.MaxPages,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	return f, nil
}

// FetchNew returns the klines of the pair starting at its watermark, in
// ascending open time. A pair with no stored data is fetched from the
// exchange's earliest available bar. The bar at the watermark itself is
// usually returned again; the loader drops it as a duplicate.
// pageLimit <= 0 falls back to the configured page size.
func (f *Fetcher) FetchNew(ctx context.Context, symbol, interval string, pageLimit int) ([]*domain.Kline, error) {
	if pageLimit <= 0 {
		pageLimit = f.pageLimit
	}
	fields := map[string]interface{}{"symbol": symbol, "interval": interval}

	watermark, ok, err := f.watermarks.Watermark(ctx, symbol, interval)
	if err != nil {
		return nil, fmt.Errorf("fetch %s-%s: %w", symbol, interval, err)
	}
	var start time.Time
	if ok {
		start = watermark
		f.logger.Debug(ctx, "Resuming from watermark", mergeFields(fields, map[string]interface{}{"watermark": watermark.UTC().Format(time.RFC3339)}))
	} else {
		f.logger.Info(ctx, "No stored klines, fetching full history", fields)
	}

	var out []*domain.Kline
	for page := 1; ; page++ {
		batch, err := f.fetchPage(ctx, ports.KlineQuery{
			Symbol:    symbol,
			Interval:  interval,
			Limit:     pageLimit,
			StartTime: start,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch %s-%s page %d: %w", symbol, interval, page, err)
		}
		f.metrics.KlinesFetched.Add(float64(len(batch)))
		out = appendAscending(out, batch)

		if len(batch) < pageLimit {
			break
		}
		next := batch[len(batch)-1].CloseTime
		if !next.After(start) {
			f.logger.Warn(ctx, "Pagination did not advance, stopping", mergeFields(fields, map[string]interface{}{"page": page}))
			break
		}
		if f.maxPages > 0 && page >= f.maxPages {
			f.logger.Info(ctx, "Page cap reached", mergeFields(fields, map[string]interface{}{"pages": page}))
			break
		}
		start = next
	}

	f.logger.Debug(ctx, "Fetched klines", mergeFields(fields, map[string]interface{}{"count": len(out)}))
	return out, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, q ports.KlineQuery) ([]*domain.Kline, error) {
	policy := f.retry
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		f.metrics.FetchRetries.Inc()
		f.logger.Warn(ctx, "Kline request failed, retrying", map[string]interface{}{
			"symbol":   q.Symbol,
			"interval": q.Interval,
			"attempt":  attempt,
			"delay":    delay.String(),
			"error":    err.Error(),
		})
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}

	var batch []*domain.Kline
	err := policy.Do(ctx, func(ctx context.Context) error {
		klines, err := f.exchange.GetKlines(ctx, q)
		if err != nil {
			f.metrics.FetchRequests.WithLabelValues("error").Inc()
			return err
		}
		f.metrics.FetchRequests.WithLabelValues("ok").Inc()
		batch = klines
		return nil
	})
	if err != nil {
		if errors.Is(err, ports.ErrRetriesExhausted) {
			f.logger.Error(ctx, err, "Giving up on kline request", map[string]interface{}{"symbol": q.Symbol, "interval": q.Interval})
		}
		return nil, err
	}
	return batch, nil
}

// appendAscending appends the klines of batch that open strictly after the
// last kline already collected, so page boundaries never repeat a bar.
func appendAscending(out, batch []*domain.Kline) []*domain.Kline {
	for _, k := range batch {
		if k == nil {
			continue
		}
		if n := len(out); n > 0 && !k.OpenTime.After(out[n-1].OpenTime) {
			continue
		}
		out = append(out, k)
	}
	return out
}

func mergeFields(base, extra map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
