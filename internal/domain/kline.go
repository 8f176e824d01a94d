package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kline represents a single closed candlestick for one symbol and interval.
type Kline struct {
	OpenTime  time.Time       // Start time of the interval
	CloseTime time.Time       // End time of the interval (last millisecond)
	Symbol    string          // Trading symbol
	Interval  string          // Kline interval (e.g., "1m", "1h")
	Open      decimal.Decimal // Opening price
	High      decimal.Decimal // Highest price
	Low       decimal.Decimal // Lowest price
	Close     decimal.Decimal // Closing price
	Volume    decimal.Decimal // Base asset volume
}

// ClosePrice returns the closing price as a float for indicator math.
func (k *Kline) ClosePrice() float64 {
	return k.Close.InexactFloat64()
}
