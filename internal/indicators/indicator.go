// Package indicators computes trailing-window technical indicators over an
// ordered close-price series. Every position gets a Sample; positions where
// the indicator is mathematically undefined are marked invalid rather than
// zero.
package indicators

import (
	"context"
	"fmt"

	"cryptoDataPipeline/internal/domain"
)

// Sample is one indicator value. Valid is false where the value is undefined.
type Sample struct {
	Value float64
	Valid bool
}

// Series holds one Sample per input kline, aligned by index.
type Series []Sample

// Indicator represents a technical indicator that can be calculated from price data
type Indicator interface {
	// Calculate returns one series per kind the indicator produces.
	Calculate(ctx context.Context, klines []*domain.Kline) (map[domain.IndicatorKind]Series, error)

	// RequiredDataPoints returns how many klines make a full window.
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the window length.
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}

func (b *BaseIndicator) validate(name string) error {
	if b.Config.Period < 1 {
		return fmt.Errorf("%s period must be positive, got %d", name, b.Config.Period)
	}
	return nil
}

// Standard returns the SMA, RSI and Bollinger Band indicators sharing one window.
func Standard(period int) []Indicator {
	cfg := IndicatorConfig{Period: period}
	return []Indicator{
		NewMovingAverage(MovingAverageConfig{IndicatorConfig: cfg}),
		NewRSI(RSIConfig{IndicatorConfig: cfg}),
		NewBollingerBands(BollingerConfig{IndicatorConfig: cfg, Multiplier: 2}),
	}
}

func closes(klines []*domain.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.ClosePrice()
	}
	return out
}

// windowStart is the first index of the trailing window ending at i.
// Positions before period-1 get the expanding prefix.
func windowStart(i, period int) int {
	if start := i - period + 1; start > 0 {
		return start
	}
	return 0
}

func mean(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
