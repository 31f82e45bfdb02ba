// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Engine metrics
	BarsAggregated prometheus.Counter
	RowsPersisted  prometheus.Counter
	TuplesTotal    *prometheus.CounterVec
	TupleDuration  *prometheus.HistogramVec
	LastEngineRun  prometheus.Gauge

	// Collector metrics
	BarsCollected   *prometheus.CounterVec
	CollectorErrors *prometheus.CounterVec

	// Validation metrics
	ValidationChecks     prometheus.Counter
	ValidationMismatches *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "indicator_lab"
	}

	return &Metrics{
		// Engine metrics
		BarsAggregated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "bars_aggregated_total",
			Help:      "Total number of derived bars aggregated",
		}),
		RowsPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rows_persisted_total",
			Help:      "Total number of output rows actually changed",
		}),
		TuplesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tuples_total",
			Help:      "Total number of (symbol, timeframe, configuration) tuples by status",
		}, []string{"status"}),
		TupleDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tuple_duration_seconds",
			Help:      "Per-tuple run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"timeframe"}),
		LastEngineRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "last_run_timestamp",
			Help:      "Unix timestamp of last completed engine run",
		}),

		// Collector metrics
		BarsCollected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "bars_collected_total",
			Help:      "Total number of base bars collected by source",
		}, []string{"source"}),
		CollectorErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "errors_total",
			Help:      "Total number of collector errors by source",
		}, []string{"source"}),

		// Validation metrics
		ValidationChecks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "checks_total",
			Help:      "Total number of instants compared by the validator",
		}),
		ValidationMismatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "mismatches_total",
			Help:      "Total number of validation findings by class",
		}, []string{"class"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTuple records the outcome of one engine tuple.
func (m *Metrics) RecordTuple(timeframe, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TuplesTotal.WithLabelValues(status).Inc()
	m.TupleDuration.WithLabelValues(timeframe).Observe(durationSeconds)
}

// RecordPersisted records aggregated bar and changed row counts for one run.
func (m *Metrics) RecordPersisted(barsAggregated int, rowsChanged int64) {
	if m == nil {
		return
	}
	m.BarsAggregated.Add(float64(barsAggregated))
	m.RowsPersisted.Add(float64(rowsChanged))
}

// RecordValidation records validation comparison counts by class.
func (m *Metrics) RecordValidation(class string, n int) {
	if m == nil {
		return
	}
	m.ValidationChecks.Add(float64(n))
	if class != "match" {
		m.ValidationMismatches.WithLabelValues(class).Add(float64(n))
	}
}
