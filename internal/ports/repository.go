package ports

import (
	"context"
	"time"

	"cryptoDataPipeline/internal/domain"
)

// DimensionResolver maps symbol and interval names to stable surrogate ids.
type DimensionResolver interface {
	// Resolve returns the id for name, creating the row on first use.
	// Safe for concurrent callers: all of them observe the same id.
	Resolve(ctx context.Context, dim domain.Dimension, name string) (int64, error)
	// ListNames returns every known name of the dimension, ordered by id.
	ListNames(ctx context.Context, dim domain.Dimension) ([]string, error)
}

// WatermarkReader reports how far a pair has already been ingested.
type WatermarkReader interface {
	// Watermark returns the greatest stored close time for the pair.
	// ok is false when the pair has no klines yet.
	Watermark(ctx context.Context, symbol, interval string) (watermark time.Time, ok bool, err error)
}

// KlineWriter persists klines.
type KlineWriter interface {
	// InsertKlines writes klines in a single transaction, skipping existing
	// natural keys, and returns how many rows were actually inserted.
	InsertKlines(ctx context.Context, instrumentID, granularityID int64, klines []*domain.Kline) (int, error)
}

// KlineRepository stores klines keyed by (symbol, interval, open time).
type KlineRepository interface {
	WatermarkReader
	KlineWriter
}

// IndicatorRepository serves the indicator engine.
type IndicatorRepository interface {
	// ListPartitions returns every partition that has at least one kline.
	ListPartitions(ctx context.Context) ([]domain.Partition, error)
	// PartitionKlines returns klines of the partition ordered by open time.
	// With a zero after, the whole series is returned. Otherwise the result is
	// the last lookback klines closing at or before after, followed by every
	// kline closing later.
	PartitionKlines(ctx context.Context, p domain.Partition, after time.Time, lookback int) ([]*domain.Kline, error)
	// LatestIndicatorTime returns the greatest persisted indicator timestamp.
	LatestIndicatorTime(ctx context.Context, p domain.Partition) (latest time.Time, ok bool, err error)
	// IndicatorKeys returns the persisted keys with timestamp >= from.
	IndicatorKeys(ctx context.Context, p domain.Partition, from time.Time) (map[domain.IndicatorKey]struct{}, error)
	// InsertIndicatorPoints appends points in one transaction and returns the
	// number of rows inserted.
	InsertIndicatorPoints(ctx context.Context, points []domain.IndicatorPoint) (int, error)
}
