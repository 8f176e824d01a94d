package indicators

import (
	"context"

	"cryptoDataPipeline/internal/domain"
)

// RSIConfig holds configuration for the RSI indicator
type RSIConfig struct {
	IndicatorConfig
}

// RSI implements the Relative Strength Index over simple trailing means of
// gains and losses.
type RSI struct {
	BaseIndicator
}

// NewRSI creates a new RSI indicator instance
func NewRSI(config RSIConfig) *RSI {
	return &RSI{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig}}
}

// Name returns the name of the indicator
func (r *RSI) Name() string {
	return string(domain.IndicatorRSI)
}

// Calculate computes the RSI at every position.
func (r *RSI) Calculate(ctx context.Context, klines []*domain.Kline) (map[domain.IndicatorKind]Series, error) {
	if err := r.validate(r.Name()); err != nil {
		return nil, err
	}
	return map[domain.IndicatorKind]Series{
		domain.IndicatorRSI: RelativeStrength(closes(klines), r.Config.Period),
	}, nil
}

// RelativeStrength returns the RSI of values. The first position has no
// previous close and contributes a zero change. Positions whose window holds
// no loss are invalid.
func RelativeStrength(values []float64, period int) Series {
	gains := make([]float64, len(values))
	losses := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		diff := values[i] - values[i-1]
		if diff > 0 {
			gains[i] = diff
		} else {
			losses[i] = -diff
		}
	}

	out := make(Series, len(values))
	for i := range values {
		start := windowStart(i, period)
		avgLoss := mean(losses[start : i+1])
		if avgLoss == 0 {
			continue
		}
		rs := mean(gains[start:i+1]) / avgLoss
		out[i] = Sample{Value: 100 - 100/(1+rs), Valid: true}
	}
	return out
}
