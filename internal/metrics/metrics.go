// Package metrics holds the Prometheus instruments of one pipeline process.
// The pipeline is a batch job, so instead of serving /metrics the registry is
// pushed to a Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus metrics for the ingestion and indicator stages.
type Metrics struct {
	registry *prometheus.Registry

	FetchRequests  *prometheus.CounterVec // labels: outcome=ok|error
	FetchRetries   prometheus.Counter
	KlinesFetched  prometheus.Counter
	KlinesInserted prometheus.Counter
	PairsFailed    prometheus.Counter

	IndicatorPointsWritten *prometheus.CounterVec // labels: kind
	PartitionsRejected     prometheus.Counter

	StageDuration  *prometheus.HistogramVec // labels: stage
	LastSuccessful prometheus.Gauge
}

// NewMetrics creates the metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_fetch_requests_total",
			Help: "Kline page requests sent to the exchange, by outcome",
		}, []string{"outcome"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_fetch_retries_total",
			Help: "Kline page requests retried after a transient failure",
		}),
		KlinesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_klines_fetched_total",
			Help: "Klines received from the exchange",
		}),
		KlinesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_klines_inserted_total",
			Help: "Klines written to storage (duplicates excluded)",
		}),
		PairsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_pairs_failed_total",
			Help: "Symbol/interval pairs whose fetch or load failed",
		}),
		IndicatorPointsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_indicator_points_written_total",
			Help: "Indicator points appended, by kind",
		}, []string{"kind"}),
		PartitionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_partitions_rejected_total",
			Help: "Partitions skipped because their klines were out of order",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Wall time of each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"stage"}),
		LastSuccessful: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without failed pairs",
		}),
	}

	m.registry.MustRegister(
		m.FetchRequests, m.FetchRetries, m.KlinesFetched, m.KlinesInserted, m.PairsFailed,
		m.IndicatorPointsWritten, m.PartitionsRejected, m.StageDuration, m.LastSuccessful,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for tests or an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, started time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// Push sends the current values to a Pushgateway under the given job name.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
