package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptoDataPipeline/internal/domain"
)

const klineColumns = `s.name, i.name, k.open_time, k.open_price, k.high_price, k.low_price, k.close_price, k.volume, k.close_time`

// Watermark returns the greatest stored close time for the pair.
func (r *Repository) Watermark(ctx context.Context, symbol, interval string) (time.Time, bool, error) {
	const query = `
	SELECT MAX(k.close_time)
	FROM klines k
	JOIN symbols s ON k.symbol_id = s.id
	JOIN intervals i ON k.interval_id = i.id
	WHERE s.name = ? AND i.name = ?`

	var last sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, symbol, interval).Scan(&last); err != nil {
		return time.Time{}, false, storageError("watermark", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(last.Int64).UTC(), true, nil
}

// InsertKlines writes all klines in one transaction. Rows whose
// (symbol, interval, open_time) already exists are skipped, never overwritten.
func (r *Repository) InsertKlines(ctx context.Context, instrumentID, granularityID int64, klines []*domain.Kline) (int, error) {
	if len(klines) == 0 {
		return 0, nil
	}
	const query = `
	INSERT OR IGNORE INTO klines
		(symbol_id, interval_id, open_time, open_price, high_price, low_price, close_price, volume, close_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageError("begin kline insert", err)
	}
	defer tx.Rollback() // no-op after commit

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, storageError("prepare kline insert", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, k := range klines {
		res, err := stmt.ExecContext(ctx, instrumentID, granularityID,
			k.OpenTime.UnixMilli(), k.Open.String(), k.High.String(), k.Low.String(), k.Close.String(), k.Volume.String(),
			k.CloseTime.UnixMilli())
		if err != nil {
			return 0, storageError(fmt.Sprintf("insert kline %s-%s@%d", k.Symbol, k.Interval, k.OpenTime.UnixMilli()), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, storageError("kline rows affected", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, storageError("commit kline insert", err)
	}
	r.logger.Debug(ctx, "Klines inserted", map[string]interface{}{"symbolID": instrumentID, "intervalID": granularityID, "candidates": len(klines), "inserted": inserted})
	return inserted, nil
}

// ListPartitions returns every (symbol, interval) id pair that has klines.
func (r *Repository) ListPartitions(ctx context.Context) ([]domain.Partition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol_id, interval_id FROM klines ORDER BY symbol_id, interval_id`)
	if err != nil {
		return nil, storageError("list partitions", err)
	}
	defer rows.Close()

	partitions := make([]domain.Partition, 0)
	for rows.Next() {
		var p domain.Partition
		if err := rows.Scan(&p.InstrumentID, &p.GranularityID); err != nil {
			return nil, storageError("scan partition", err)
		}
		partitions = append(partitions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate partitions", err)
	}
	return partitions, nil
}

// PartitionKlines returns the partition's klines in open time order. With a
// non-zero after it returns the lookback klines closing at or before after
// followed by all klines closing later.
func (r *Repository) PartitionKlines(ctx context.Context, p domain.Partition, after time.Time, lookback int) ([]*domain.Kline, error) {
	const base = `
	SELECT ` + klineColumns + `
	FROM klines k
	JOIN symbols s ON k.symbol_id = s.id
	JOIN intervals i ON k.interval_id = i.id
	WHERE k.symbol_id = ? AND k.interval_id = ?`

	if after.IsZero() {
		return r.queryKlines(ctx, base+` ORDER BY k.open_time`, p.InstrumentID, p.GranularityID)
	}

	afterMs := after.UnixMilli()
	var lead []*domain.Kline
	if lookback > 0 {
		var err error
		lead, err = r.queryKlines(ctx, base+` AND k.close_time <= ? ORDER BY k.open_time DESC LIMIT ?`,
			p.InstrumentID, p.GranularityID, afterMs, lookback)
		if err != nil {
			return nil, err
		}
		for i, j := 0, len(lead)-1; i < j; i, j = i+1, j-1 {
			lead[i], lead[j] = lead[j], lead[i]
		}
	}

	tail, err := r.queryKlines(ctx, base+` AND k.close_time > ? ORDER BY k.open_time`, p.InstrumentID, p.GranularityID, afterMs)
	if err != nil {
		return nil, err
	}
	return append(lead, tail...), nil
}

// KlinesForPair returns every stored kline of a pair in open time order.
func (r *Repository) KlinesForPair(ctx context.Context, symbol, interval string) ([]*domain.Kline, error) {
	const query = `
	SELECT ` + klineColumns + `
	FROM klines k
	JOIN symbols s ON k.symbol_id = s.id
	JOIN intervals i ON k.interval_id = i.id
	WHERE s.name = ? AND i.name = ?
	ORDER BY k.open_time`
	return r.queryKlines(ctx, query, symbol, interval)
}

// CountKlines returns the number of stored klines for a pair. Ingestion and
// pipeline tests use it to check what a run persisted.
func (r *Repository) CountKlines(ctx context.Context, symbol, interval string) (int, error) {
	const query = `
	SELECT COUNT(*)
	FROM klines k
	JOIN symbols s ON k.symbol_id = s.id
	JOIN intervals i ON k.interval_id = i.id
	WHERE s.name = ? AND i.name = ?`
	var n int
	if err := r.db.QueryRowContext(ctx, query, symbol, interval).Scan(&n); err != nil {
		return 0, storageError("count klines", err)
	}
	return n, nil
}

func (r *Repository) queryKlines(ctx context.Context, query string, args ...interface{}) ([]*domain.Kline, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError("query klines", err)
	}
	defer rows.Close()

	klines := make([]*domain.Kline, 0)
	for rows.Next() {
		k, err := scanKline(rows)
		if err != nil {
			return nil, storageError("scan kline", err)
		}
		klines = append(klines, k)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate klines", err)
	}
	return klines, nil
}

// scanKline scans a row selected with klineColumns into a domain.Kline.
func scanKline(s scanner) (*domain.Kline, error) {
	k := &domain.Kline{}
	var openMs, closeMs int64
	var open, high, low, cls, vol string
	if err := s.Scan(&k.Symbol, &k.Interval, &openMs, &open, &high, &low, &cls, &vol, &closeMs); err != nil {
		return nil, err
	}
	var err error
	if k.Open, err = decimal.NewFromString(open); err != nil {
		return nil, fmt.Errorf("parsing stored open price '%s': %w", open, err)
	}
	if k.High, err = decimal.NewFromString(high); err != nil {
		return nil, fmt.Errorf("parsing stored high price '%s': %w", high, err)
	}
	if k.Low, err = decimal.NewFromString(low); err != nil {
		return nil, fmt.Errorf("parsing stored low price '%s': %w", low, err)
	}
	if k.Close, err = decimal.NewFromString(cls); err != nil {
		return nil, fmt.Errorf("parsing stored close price '%s': %w", cls, err)
	}
	if k.Volume, err = decimal.NewFromString(vol); err != nil {
		return nil, fmt.Errorf("parsing stored volume '%s': %w", vol, err)
	}
	k.OpenTime = time.UnixMilli(openMs).UTC()
	k.CloseTime = time.UnixMilli(closeMs).UTC()
	return k, nil
}
