package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"SwingPull/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	barsIngested prometheus.Counter
	impulses     prometheus.Counter
	snapshots    *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		barsIngested: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "swingpull_bars_ingested_total",
				Help: "Total number of OHLCV bars written to storage",
			},
		),
		impulses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "swingpull_impulses_detected_total",
				Help: "Total number of impulse signals detected",
			},
		),
		snapshots: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swingpull_snapshots_total",
				Help: "Total number of funnel snapshots computed, by state",
			},
			[]string{"state"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swingpull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swingpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordBarsIngested records bars written to storage.
func (r *Recorder) RecordBarsIngested(n int) {
	r.barsIngested.Add(float64(n))
}

// RecordImpulsesDetected records detected impulse signals.
func (r *Recorder) RecordImpulsesDetected(n int) {
	r.impulses.Add(float64(n))
}

// RecordSnapshot records one computed snapshot by state.
func (r *Recorder) RecordSnapshot(state models.State) {
	r.snapshots.WithLabelValues(string(state)).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
