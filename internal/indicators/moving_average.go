package indicators

import (
	"context"

	"cryptoDataPipeline/internal/domain"
)

// MovingAverageConfig holds configuration for the simple moving average.
type MovingAverageConfig struct {
	IndicatorConfig
}

// MovingAverage implements the simple moving average of close prices.
type MovingAverage struct {
	BaseIndicator
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig}}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return string(domain.IndicatorSMA)
}

// Calculate computes the SMA at every position.
func (m *MovingAverage) Calculate(ctx context.Context, klines []*domain.Kline) (map[domain.IndicatorKind]Series, error) {
	if err := m.validate(m.Name()); err != nil {
		return nil, err
	}
	return map[domain.IndicatorKind]Series{
		domain.IndicatorSMA: SMA(closes(klines), m.Config.Period),
	}, nil
}

// SMA returns the trailing mean of values. It is defined at every position.
func SMA(values []float64, period int) Series {
	out := make(Series, len(values))
	for i := range values {
		out[i] = Sample{Value: mean(values[windowStart(i, period) : i+1]), Valid: true}
	}
	return out
}
