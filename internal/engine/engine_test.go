package engine

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoDataPipeline/internal/adapters/sqlite"
	"cryptoDataPipeline/internal/domain"
	"cryptoDataPipeline/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var baseTime = time.Date(2025, 9, 9, 0, 0, 0, 0, time.UTC)

func setupRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "engine.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func hourly(closes []float64, offset int) []*domain.Kline {
	out := make([]*domain.Kline, len(closes))
	for i, c := range closes {
		open := baseTime.Add(time.Duration(offset+i) * time.Hour)
		price := decimal.NewFromFloat(c)
		out[i] = &domain.Kline{
			Symbol:    "BTCUSDT",
			Interval:  "1h",
			OpenTime:  open,
			CloseTime: open.Add(time.Hour - time.Millisecond),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    decimal.NewFromInt(1),
		}
	}
	return out
}

func wavy(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Round((100+10*math.Sin(float64(i)/3))*100) / 100
	}
	return out
}

func rising(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func store(t *testing.T, repo *sqlite.Repository, klines []*domain.Kline) domain.Partition {
	t.Helper()
	ctx := context.Background()
	symbolID, err := repo.Resolve(ctx, domain.DimensionInstrument, "BTCUSDT")
	require.NoError(t, err)
	intervalID, err := repo.Resolve(ctx, domain.DimensionGranularity, "1h")
	require.NoError(t, err)
	_, err = repo.InsertKlines(ctx, symbolID, intervalID, klines)
	require.NoError(t, err)
	return domain.Partition{InstrumentID: symbolID, GranularityID: intervalID}
}

func newEngine(t *testing.T, repo ports.IndicatorRepository, mode Mode, partial PartialPolicy) *Engine {
	t.Helper()
	e, err := New(Config{Repository: repo, Window: 14, Mode: mode, PartialPolicy: partial, Workers: 2, Logger: &mockLogger{}})
	require.NoError(t, err)
	return e
}

func TestComputeAndPersist_RisingSeries(t *testing.T) {
	repo := setupRepo(t)
	klines := hourly(rising(20), 0)
	p := store(t, repo, klines)

	report, err := newEngine(t, repo, ModeFull, PartialEmit).ComputeAndPersist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.PartitionsProcessed)
	assert.Equal(t, 20, report.PointsWritten[domain.IndicatorSMA])
	assert.Zero(t, report.PointsWritten[domain.IndicatorRSI], "no losses, no RSI")
	assert.Equal(t, 19, report.PointsWritten[domain.IndicatorBBUpper], "first bar has no deviation")
	assert.Equal(t, 19, report.PointsWritten[domain.IndicatorBBLower])

	sma, err := repo.IndicatorPoints(context.Background(), p, domain.IndicatorSMA)
	require.NoError(t, err)
	require.Len(t, sma, 20)
	assert.True(t, sma[13].Timestamp.Equal(klines[13].CloseTime))
	assert.InDelta(t, 7.5, sma[13].Value, 1e-9)
}

func TestComputeAndPersist_RerunWritesNothing(t *testing.T) {
	for _, mode := range []Mode{ModeFull, ModeIncremental} {
		t.Run(string(mode), func(t *testing.T) {
			repo := setupRepo(t)
			p := store(t, repo, hourly(wavy(40), 0))
			e := newEngine(t, repo, mode, PartialEmit)

			first, err := e.ComputeAndPersist(context.Background())
			require.NoError(t, err)
			assert.Positive(t, first.TotalPoints())

			second, err := e.ComputeAndPersist(context.Background())
			require.NoError(t, err)
			assert.Zero(t, second.TotalPoints())

			count, err := repo.CountIndicators(context.Background(), p)
			require.NoError(t, err)
			assert.Equal(t, first.TotalPoints(), count)
		})
	}
}

func TestComputeAndPersist_IncrementalMatchesFull(t *testing.T) {
	closes := wavy(60)
	ctx := context.Background()

	incRepo := setupRepo(t)
	incEngine := newEngine(t, incRepo, ModeIncremental, PartialEmit)
	incPartition := store(t, incRepo, hourly(closes[:25], 0))
	_, err := incEngine.ComputeAndPersist(ctx)
	require.NoError(t, err)
	store(t, incRepo, hourly(closes[25:31], 25))
	_, err = incEngine.ComputeAndPersist(ctx)
	require.NoError(t, err)
	store(t, incRepo, hourly(closes[31:], 31))
	_, err = incEngine.ComputeAndPersist(ctx)
	require.NoError(t, err)

	fullRepo := setupRepo(t)
	fullPartition := store(t, fullRepo, hourly(closes, 0))
	_, err = newEngine(t, fullRepo, ModeFull, PartialEmit).ComputeAndPersist(ctx)
	require.NoError(t, err)

	for _, kind := range domain.IndicatorKinds {
		inc, err := incRepo.IndicatorPoints(ctx, incPartition, kind)
		require.NoError(t, err)
		full, err := fullRepo.IndicatorPoints(ctx, fullPartition, kind)
		require.NoError(t, err)
		require.Len(t, inc, len(full), string(kind))
		for i := range full {
			assert.True(t, inc[i].Timestamp.Equal(full[i].Timestamp), "%s[%d] timestamp", kind, i)
			assert.Equal(t, full[i].Value, inc[i].Value, "%s[%d] value", kind, i)
		}
	}
}

func TestComputeAndPersist_SuppressPartialWindows(t *testing.T) {
	repo := setupRepo(t)
	store(t, repo, hourly(rising(20), 0))

	report, err := newEngine(t, repo, ModeIncremental, PartialSuppress).ComputeAndPersist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, report.PointsWritten[domain.IndicatorSMA])
	assert.Equal(t, 7, report.PointsWritten[domain.IndicatorBBUpper])
}

func TestComputeAndPersist_BandsEncloseMean(t *testing.T) {
	repo := setupRepo(t)
	p := store(t, repo, hourly(wavy(30), 0))
	ctx := context.Background()
	_, err := newEngine(t, repo, ModeFull, PartialEmit).ComputeAndPersist(ctx)
	require.NoError(t, err)

	sma, err := repo.IndicatorPoints(ctx, p, domain.IndicatorSMA)
	require.NoError(t, err)
	upper, err := repo.IndicatorPoints(ctx, p, domain.IndicatorBBUpper)
	require.NoError(t, err)
	lower, err := repo.IndicatorPoints(ctx, p, domain.IndicatorBBLower)
	require.NoError(t, err)
	rsi, err := repo.IndicatorPoints(ctx, p, domain.IndicatorRSI)
	require.NoError(t, err)

	mean := make(map[int64]float64, len(sma))
	for _, pt := range sma {
		mean[pt.Timestamp.UnixMilli()] = pt.Value
	}
	require.Len(t, upper, len(lower))
	for i := range upper {
		m := mean[upper[i].Timestamp.UnixMilli()]
		assert.GreaterOrEqual(t, upper[i].Value, m)
		assert.LessOrEqual(t, lower[i].Value, m)
	}
	for _, pt := range rsi {
		assert.GreaterOrEqual(t, pt.Value, 0.0)
		assert.LessOrEqual(t, pt.Value, 100.0)
	}
}

// fakeRepo serves fixed klines per partition from memory.
type fakeRepo struct {
	mu        sync.Mutex
	klines    map[domain.Partition][]*domain.Kline
	points    []domain.IndicatorPoint
	insertErr error
}

func (f *fakeRepo) ListPartitions(ctx context.Context) ([]domain.Partition, error) {
	var out []domain.Partition
	for p := range f.klines {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRepo) PartitionKlines(ctx context.Context, p domain.Partition, after time.Time, lookback int) ([]*domain.Kline, error) {
	return f.klines[p], nil
}

func (f *fakeRepo) LatestIndicatorTime(ctx context.Context, p domain.Partition) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (f *fakeRepo) IndicatorKeys(ctx context.Context, p domain.Partition, from time.Time) (map[domain.IndicatorKey]struct{}, error) {
	return map[domain.IndicatorKey]struct{}{}, nil
}

func (f *fakeRepo) InsertIndicatorPoints(ctx context.Context, points []domain.IndicatorPoint) (int, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, points...)
	return len(points), nil
}

func TestComputeAndPersist_RejectsOutOfOrderPartition(t *testing.T) {
	good := domain.Partition{InstrumentID: 1, GranularityID: 1}
	bad := domain.Partition{InstrumentID: 2, GranularityID: 1}
	shuffled := hourly(wavy(5), 0)
	shuffled[2], shuffled[3] = shuffled[3], shuffled[2]

	repo := &fakeRepo{klines: map[domain.Partition][]*domain.Kline{
		good: hourly(wavy(5), 0),
		bad:  shuffled,
	}}

	report, err := newEngine(t, repo, ModeIncremental, PartialEmit).ComputeAndPersist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.PartitionsProcessed)
	assert.Equal(t, 1, report.PartitionsRejected)
	for _, pt := range repo.points {
		assert.Equal(t, good, pt.Partition)
	}
}

func TestComputeAndPersist_DuplicateOpenTimeRejected(t *testing.T) {
	klines := hourly(wavy(4), 0)
	klines[2].OpenTime = klines[1].OpenTime
	repo := &fakeRepo{klines: map[domain.Partition][]*domain.Kline{{InstrumentID: 1, GranularityID: 1}: klines}}

	report, err := newEngine(t, repo, ModeFull, PartialEmit).ComputeAndPersist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.PartitionsRejected)
	assert.Empty(t, repo.points)
}

func TestComputeAndPersist_StorageFailure(t *testing.T) {
	repo := &fakeRepo{
		klines:    map[domain.Partition][]*domain.Kline{{InstrumentID: 1, GranularityID: 1}: hourly(wavy(5), 0)},
		insertErr: fmt.Errorf("insert indicators failed: %w", ports.ErrStorage),
	}

	report, err := newEngine(t, repo, ModeFull, PartialEmit).ComputeAndPersist(context.Background())
	assert.ErrorIs(t, err, ports.ErrStorage)
	assert.Equal(t, 1, report.PartitionsFailed)
}

// failingPartitionRepo fails indicator inserts for a single partition.
type failingPartitionRepo struct {
	*sqlite.Repository
	failing domain.Partition
}

func (f *failingPartitionRepo) InsertIndicatorPoints(ctx context.Context, points []domain.IndicatorPoint) (int, error) {
	if len(points) > 0 && points[0].Partition == f.failing {
		return 0, fmt.Errorf("insert indicators failed: disk full: %w", ports.ErrStorage)
	}
	return f.Repository.InsertIndicatorPoints(ctx, points)
}

func TestComputeAndPersist_StorageFailureIsolatedToPartition(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	broken := store(t, repo, hourly(wavy(20), 0))

	ethID, err := repo.Resolve(ctx, domain.DimensionInstrument, "ETHUSDT")
	require.NoError(t, err)
	_, err = repo.InsertKlines(ctx, ethID, broken.GranularityID, hourly(wavy(20), 0))
	require.NoError(t, err)
	healthy := domain.Partition{InstrumentID: ethID, GranularityID: broken.GranularityID}

	e, err := New(Config{
		Repository: &failingPartitionRepo{Repository: repo, failing: broken},
		Window:     14,
		Mode:       ModeFull,
		Workers:    1,
		Logger:     &mockLogger{},
	})
	require.NoError(t, err)

	report, err := e.ComputeAndPersist(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrStorage)
	assert.Contains(t, err.Error(), fmt.Sprintf("partition %d/%d", broken.InstrumentID, broken.GranularityID))
	assert.Equal(t, 1, report.PartitionsProcessed)
	assert.Equal(t, 1, report.PartitionsFailed)
	assert.Equal(t, 20, report.PointsWritten[domain.IndicatorSMA])

	sma, err := repo.IndicatorPoints(ctx, healthy, domain.IndicatorSMA)
	require.NoError(t, err)
	assert.Len(t, sma, 20)
	sma, err = repo.IndicatorPoints(ctx, broken, domain.IndicatorSMA)
	require.NoError(t, err)
	assert.Empty(t, sma)
}

func TestComputeAndPersist_CanceledContext(t *testing.T) {
	repo := &fakeRepo{klines: map[domain.Partition][]*domain.Kline{{InstrumentID: 1, GranularityID: 1}: hourly(wavy(5), 0)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newEngine(t, repo, ModeFull, PartialEmit).ComputeAndPersist(ctx)
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
	assert.Zero(t, report.PartitionsProcessed)
	assert.Empty(t, repo.points)
}

func TestParseModeAndPolicy(t *testing.T) {
	tests := []struct {
		in      string
		mode    Mode
		wantErr bool
	}{
		{in: "", mode: ModeIncremental},
		{in: "FULL", mode: ModeFull},
		{in: " incremental ", mode: ModeIncremental},
		{in: "partial", wantErr: true},
	}
	for _, tt := range tests {
		m, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ports.ErrConfigurationError)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.mode, m)
	}

	p, err := ParsePartialPolicy("Suppress")
	require.NoError(t, err)
	assert.Equal(t, PartialSuppress, p)
	_, err = ParsePartialPolicy("drop")
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = New(Config{Repository: &fakeRepo{}, Logger: &mockLogger{}, Window: -1})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}
