package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"cryptoDataPipeline/internal/domain"
	"cryptoDataPipeline/internal/ports"
)

// dimensionTable maps a dimension to its table. Only these names are ever
// concatenated into SQL.
func dimensionTable(dim domain.Dimension) (string, error) {
	switch dim {
	case domain.DimensionInstrument:
		return "symbols", nil
	case domain.DimensionGranularity:
		return "intervals", nil
	default:
		return "", fmt.Errorf("%w: unknown dimension %q", ports.ErrInvalidRequest, dim)
	}
}

// Resolve returns the id for name, inserting it when absent.
// Concurrent callers race on the UNIQUE constraint; the loser re-selects the
// winner's id.
func (r *Repository) Resolve(ctx context.Context, dim domain.Dimension, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("Resolve failed: %w: empty %s name", ports.ErrInvalidRequest, dim)
	}
	table, err := dimensionTable(dim)
	if err != nil {
		return 0, err
	}

	id, found, err := r.lookupDimension(ctx, table, name)
	if err != nil {
		return 0, err
	}
	if found {
		return id, nil
	}
	return r.insertDimension(ctx, table, name)
}

func (r *Repository) lookupDimension(ctx context.Context, table, name string) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, "SELECT id FROM "+table+" WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storageError("lookup "+table, err)
	}
	return id, true, nil
}

func (r *Repository) insertDimension(ctx context.Context, table, name string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "INSERT INTO "+table+" (name) VALUES (?)", name)
	if err != nil {
		if !isUniqueViolation(err) {
			return 0, storageError("insert "+table, err)
		}
		r.logger.Debug(ctx, "Lost dimension insert race, re-selecting", map[string]interface{}{"table": table, "name": name})
		id, found, lookupErr := r.lookupDimension(ctx, table, name)
		if lookupErr != nil {
			return 0, lookupErr
		}
		if !found {
			return 0, storageError("insert "+table, fmt.Errorf("%w: %q vanished after unique violation", ports.ErrNotFound, name))
		}
		return id, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, storageError("insert "+table, err)
	}
	r.logger.Info(ctx, "Dimension created", map[string]interface{}{"table": table, "name": name, "id": id})
	return id, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// ListNames returns every name of the dimension in creation order.
func (r *Repository) ListNames(ctx context.Context, dim domain.Dimension) ([]string, error) {
	table, err := dimensionTable(dim)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, "SELECT name FROM "+table+" ORDER BY id")
	if err != nil {
		return nil, storageError("list "+table, err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storageError("list "+table, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list "+table, err)
	}
	return names, nil
}
