package indicators

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoDataPipeline/internal/domain"
)

func series(from, to int) []float64 {
	out := make([]float64, 0, to-from+1)
	for v := from; v <= to; v++ {
		out = append(out, float64(v))
	}
	return out
}

func klinesFromCloses(values []float64) []*domain.Kline {
	now := time.Date(2025, 9, 9, 0, 0, 0, 0, time.UTC)
	out := make([]*domain.Kline, len(values))
	for i, v := range values {
		open := now.Add(time.Duration(i) * time.Hour)
		out[i] = &domain.Kline{
			OpenTime:  open,
			CloseTime: open.Add(time.Hour - time.Millisecond),
			Close:     decimal.NewFromFloat(v),
		}
	}
	return out
}

func TestSMA(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		period   int
		position int
		expected float64
	}{
		{name: "full window", values: series(1, 20), period: 14, position: 13, expected: 7.5},
		{name: "trailing window", values: series(1, 20), period: 14, position: 19, expected: 13.5},
		{name: "expanding prefix", values: series(1, 20), period: 14, position: 3, expected: 2.5},
		{name: "first position", values: []float64{100, 102}, period: 3, position: 0, expected: 100},
		{name: "period one", values: []float64{100, 102, 101}, period: 1, position: 2, expected: 101},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := SMA(tt.values, tt.period)
			require.Len(t, out, len(tt.values))
			assert.True(t, out[tt.position].Valid)
			assert.InDelta(t, tt.expected, out[tt.position].Value, 1e-9)
		})
	}
}

func TestRelativeStrength(t *testing.T) {
	t.Run("no losses means no RSI", func(t *testing.T) {
		for i, s := range RelativeStrength(series(1, 20), 14) {
			assert.False(t, s.Valid, "position %d", i)
		}
	})

	t.Run("balanced moves", func(t *testing.T) {
		out := RelativeStrength([]float64{1, 2, 1}, 14)
		assert.False(t, out[0].Valid)
		assert.False(t, out[1].Valid, "window [0,+1] has no loss")
		require.True(t, out[2].Valid)
		assert.InDelta(t, 50.0, out[2].Value, 1e-9)
	})

	t.Run("trailing window drops old moves", func(t *testing.T) {
		// diffs: 0, +2, -1, +2, -1, +2; window 3 at the end holds +2,-1,+2
		out := RelativeStrength([]float64{100, 102, 101, 103, 102, 104}, 3)
		require.True(t, out[5].Valid)
		assert.InDelta(t, 80.0, out[5].Value, 1e-9)
	})

	t.Run("only losses", func(t *testing.T) {
		out := RelativeStrength([]float64{10, 9, 8, 7}, 3)
		require.True(t, out[3].Valid)
		assert.InDelta(t, 0.0, out[3].Value, 1e-9)
	})

	t.Run("bounded", func(t *testing.T) {
		values := []float64{44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1, 45.9, 46.2, 45.6, 46.3, 46.3, 46, 46.4, 46.2, 45.6, 46.2}
		for _, s := range RelativeStrength(values, 14) {
			if s.Valid {
				assert.GreaterOrEqual(t, s.Value, 0.0)
				assert.LessOrEqual(t, s.Value, 100.0)
			}
		}
	})
}

func TestBands(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	upper, lower := Bands(values, 8, 2)

	assert.False(t, upper[0].Valid, "single element window has no deviation")
	assert.False(t, lower[0].Valid)

	// sample stddev of the full set: sqrt(32/7)
	require.True(t, upper[7].Valid)
	sd := 2.1380899352993950
	assert.InDelta(t, 5+2*sd, upper[7].Value, 1e-9)
	assert.InDelta(t, 5-2*sd, lower[7].Value, 1e-9)

	sma := SMA(values, 8)
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, upper[i].Value, sma[i].Value)
		assert.LessOrEqual(t, lower[i].Value, sma[i].Value)
	}
}

func TestBands_FlatSeries(t *testing.T) {
	upper, lower := Bands([]float64{5, 5, 5}, 3, 2)
	assert.True(t, upper[2].Valid)
	assert.Equal(t, 5.0, upper[2].Value)
	assert.Equal(t, 5.0, lower[2].Value)
}

func TestStandard_Calculate(t *testing.T) {
	klines := klinesFromCloses(series(1, 20))
	got := make(map[domain.IndicatorKind]Series)
	for _, ind := range Standard(14) {
		assert.Equal(t, 14, ind.RequiredDataPoints())
		out, err := ind.Calculate(context.Background(), klines)
		require.NoError(t, err, ind.Name())
		for kind, s := range out {
			got[kind] = s
		}
	}

	for _, kind := range domain.IndicatorKinds {
		require.Contains(t, got, kind)
		assert.Len(t, got[kind], len(klines))
	}
	assert.InDelta(t, 7.5, got[domain.IndicatorSMA][13].Value, 1e-9)
}

func TestCalculate_InvalidPeriod(t *testing.T) {
	for _, ind := range Standard(0) {
		_, err := ind.Calculate(context.Background(), klinesFromCloses([]float64{1, 2}))
		assert.Error(t, err, ind.Name())
	}
}
