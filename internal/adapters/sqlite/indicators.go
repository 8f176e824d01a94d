package sqlite

import (
	"context"
	"database/sql"
	"time"

	"cryptoDataPipeline/internal/domain"
)

// LatestIndicatorTime returns the greatest persisted indicator timestamp of
// the partition, across all kinds.
func (r *Repository) LatestIndicatorTime(ctx context.Context, p domain.Partition) (time.Time, bool, error) {
	const query = `SELECT MAX(timestamp) FROM indicators WHERE symbol_id = ? AND interval_id = ?`
	var last sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, p.InstrumentID, p.GranularityID).Scan(&last); err != nil {
		return time.Time{}, false, storageError("latest indicator time", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(last.Int64).UTC(), true, nil
}

// IndicatorKeys returns the natural keys already persisted for the partition
// with timestamp >= from.
func (r *Repository) IndicatorKeys(ctx context.Context, p domain.Partition, from time.Time) (map[domain.IndicatorKey]struct{}, error) {
	const query = `SELECT type, timestamp FROM indicators WHERE symbol_id = ? AND interval_id = ? AND timestamp >= ?`
	rows, err := r.db.QueryContext(ctx, query, p.InstrumentID, p.GranularityID, from.UnixMilli())
	if err != nil {
		return nil, storageError("query indicator keys", err)
	}
	defer rows.Close()

	keys := make(map[domain.IndicatorKey]struct{})
	for rows.Next() {
		var kind string
		var ts int64
		if err := rows.Scan(&kind, &ts); err != nil {
			return nil, storageError("scan indicator key", err)
		}
		keys[domain.IndicatorKey{Partition: p, Kind: domain.IndicatorKind(kind), TimestampMs: ts}] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate indicator keys", err)
	}
	return keys, nil
}

// InsertIndicatorPoints appends points in a single transaction. Existing keys
// are ignored so a concurrent writer cannot make the batch fail.
func (r *Repository) InsertIndicatorPoints(ctx context.Context, points []domain.IndicatorPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	const query = `
	INSERT OR IGNORE INTO indicators (symbol_id, interval_id, type, timestamp, value)
	VALUES (?, ?, ?, ?, ?)`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageError("begin indicator insert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, storageError("prepare indicator insert", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, pt := range points {
		res, err := stmt.ExecContext(ctx, pt.Partition.InstrumentID, pt.Partition.GranularityID, string(pt.Kind), pt.Timestamp.UnixMilli(), pt.Value)
		if err != nil {
			return 0, storageError("insert indicator", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, storageError("indicator rows affected", err)
		}
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, storageError("commit indicator insert", err)
	}
	return inserted, nil
}

// IndicatorPoints returns all persisted points of one kind for a partition,
// oldest first.
func (r *Repository) IndicatorPoints(ctx context.Context, p domain.Partition, kind domain.IndicatorKind) ([]domain.IndicatorPoint, error) {
	const query = `
	SELECT timestamp, value FROM indicators
	WHERE symbol_id = ? AND interval_id = ? AND type = ?
	ORDER BY timestamp`
	rows, err := r.db.QueryContext(ctx, query, p.InstrumentID, p.GranularityID, string(kind))
	if err != nil {
		return nil, storageError("query indicator points", err)
	}
	defer rows.Close()

	points := make([]domain.IndicatorPoint, 0)
	for rows.Next() {
		var ts int64
		pt := domain.IndicatorPoint{Partition: p, Kind: kind}
		if err := rows.Scan(&ts, &pt.Value); err != nil {
			return nil, storageError("scan indicator point", err)
		}
		pt.Timestamp = time.UnixMilli(ts).UTC()
		points = append(points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate indicator points", err)
	}
	return points, nil
}

// CountIndicators returns the number of persisted points for a partition.
func (r *Repository) CountIndicators(ctx context.Context, p domain.Partition) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indicators WHERE symbol_id = ? AND interval_id = ?`,
		p.InstrumentID, p.GranularityID).Scan(&n)
	if err != nil {
		return 0, storageError("count indicators", err)
	}
	return n, nil
}
