package ports

import (
	"context"
	"time"

	"cryptoDataPipeline/internal/domain"
)

// KlineQuery describes one page request against the exchange kline endpoint.
type KlineQuery struct {
	Symbol    string
	Interval  string
	Limit     int
	StartTime time.Time // zero means no lower bound
}

// ExchangeClient defines the interface for reading market data from a
// cryptocurrency exchange.
type ExchangeClient interface {
	// GetKlines retrieves one page of historical klines in ascending open time.
	// Errors are wrapped with the sentinels in errors.go so callers can decide
	// whether to retry (see IsTransient).
	GetKlines(ctx context.Context, q KlineQuery) ([]*domain.Kline, error)

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error
}
