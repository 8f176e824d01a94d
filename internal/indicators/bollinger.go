package indicators

import (
	"context"
	"math"

	"cryptoDataPipeline/internal/domain"
)

// BollingerConfig holds configuration for Bollinger Bands.
type BollingerConfig struct {
	IndicatorConfig
	Multiplier float64 // band width in standard deviations, 2 when unset
}

// BollingerBands implements upper and lower bands around the trailing mean.
type BollingerBands struct {
	BaseIndicator
	multiplier float64
}

// NewBollingerBands creates a new Bollinger Bands indicator instance.
func NewBollingerBands(config BollingerConfig) *BollingerBands {
	m := config.Multiplier
	if m <= 0 {
		m = 2
	}
	return &BollingerBands{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		multiplier:    m,
	}
}

// Name returns the name of the indicator
func (b *BollingerBands) Name() string {
	return "BB"
}

// Calculate computes both bands at every position.
func (b *BollingerBands) Calculate(ctx context.Context, klines []*domain.Kline) (map[domain.IndicatorKind]Series, error) {
	if err := b.validate(b.Name()); err != nil {
		return nil, err
	}
	upper, lower := Bands(closes(klines), b.Config.Period, b.multiplier)
	return map[domain.IndicatorKind]Series{
		domain.IndicatorBBUpper: upper,
		domain.IndicatorBBLower: lower,
	}, nil
}

// Bands returns mean ± k·σ over the trailing window, σ being the sample
// standard deviation. A single-element window has no σ and is invalid.
func Bands(values []float64, period int, k float64) (upper, lower Series) {
	upper = make(Series, len(values))
	lower = make(Series, len(values))
	for i := range values {
		window := values[windowStart(i, period) : i+1]
		sd, ok := sampleStdDev(window)
		if !ok {
			continue
		}
		m := mean(window)
		upper[i] = Sample{Value: m + k*sd, Valid: true}
		lower[i] = Sample{Value: m - k*sd, Valid: true}
	}
	return upper, lower
}

func sampleStdDev(values []float64) (float64, bool) {
	n := len(values)
	if n < 2 {
		return 0, false
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(n-1)), true
}
