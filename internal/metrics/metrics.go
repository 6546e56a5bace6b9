package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query outcome labels.
const (
	StatusOK      = "ok"
	StatusEmpty   = "empty"
	StatusInvalid = "invalid"
	StatusFailed  = "failed"
)

// Metrics holds all Prometheus metrics for the attribution service.
type Metrics struct {
	// Attribution metrics
	Queries          *prometheus.CounterVec
	QueryLatency     *prometheus.HistogramVec
	ResultRows       prometheus.Histogram
	TimeToConversion prometheus.Histogram

	// Result store metrics
	ResultStoreOps *prometheus.CounterVec

	// System metrics
	DBConnections *prometheus.GaugeVec
	RateLimitHits *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates and registers all metrics with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		Queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attribution_queries_total",
				Help:      "Attribution executions by engine and outcome",
			},
			[]string{"engine", "status"},
		),
		QueryLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attribution_query_duration_seconds",
				Help:      "Attribution query latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"engine", "status"},
		),
		ResultRows: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attribution_result_rows",
				Help:      "Rows returned per attribution execution",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
		TimeToConversion: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attribution_time_to_conversion_days",
				Help:      "Days between the credited impression and the conversion",
				Buckets:   []float64{0, 1, 2, 3, 5, 7, 14, 30, 60, 90},
			},
		),
		ResultStoreOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "result_store_operations_total",
				Help:      "Session result store operations",
			},
			[]string{"op", "status"},
		),
		DBConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Event store connection pool state",
			},
			[]string{"state"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"endpoint"},
		),
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler returns the Prometheus metrics HTTP handler for the registry the
// metrics were created with.
func (m *Metrics) Handler() http.Handler {
	if m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordQuery records one attribution execution.
func (m *Metrics) RecordQuery(engine, status string, latency time.Duration) {
	m.Queries.WithLabelValues(engine, status).Inc()
	m.QueryLatency.WithLabelValues(engine, status).Observe(latency.Seconds())
}

// RecordResult records the size and time-to-conversion spread of a result.
func (m *Metrics) RecordResult(rows int, timeToConversion []int64) {
	m.ResultRows.Observe(float64(rows))
	for _, d := range timeToConversion {
		m.TimeToConversion.Observe(float64(d))
	}
}

// RecordResultStore records a result store operation.
func (m *Metrics) RecordResultStore(op string, err error) {
	status := StatusOK
	if err != nil {
		status = StatusFailed
	}
	m.ResultStoreOps.WithLabelValues(op, status).Inc()
}

// UpdateDBStats updates database connection metrics.
func (m *Metrics) UpdateDBStats(idle, inUse, total int) {
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("total").Set(float64(total))
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}
