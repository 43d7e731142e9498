package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for credential verification.
type Metrics struct {
	verifyTotal      *prometheus.CounterVec
	verifyDuration   *prometheus.HistogramVec
	decisionsTotal   *prometheus.CounterVec
	sharedFlights    prometheus.Counter
	cacheWriteErrors prometheus.Counter
	registerer       prometheus.Registerer
}

// NewMetrics creates a new Metrics instance registered with
// prometheus.DefaultRegisterer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer. The gateway passes the registry it serves /metrics from.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{registerer: registerer}

	m.verifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "verify_total",
			Help:      "Total number of calls to the identity authority by outcome",
		},
		[]string{"mode", "outcome"},
	)

	m.verifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "verify_duration_seconds",
			Help:      "Identity authority call duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	m.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "decisions_total",
			Help:      "Total number of authorization decisions by outcome and source",
		},
		[]string{"outcome", "source"},
	)

	m.sharedFlights = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "shared_verifications_total",
			Help:      "Total number of cache misses whose verification call was shared with concurrent requests",
		},
	)

	m.cacheWriteErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "cache_write_errors_total",
			Help:      "Total number of verification results that could not be cached",
		},
	)

	return m
}

// MustRegister registers all metrics with the registerer.
func (m *Metrics) MustRegister() {
	m.registerer.MustRegister(
		m.verifyTotal,
		m.verifyDuration,
		m.decisionsTotal,
		m.sharedFlights,
		m.cacheWriteErrors,
	)
}

// Register registers all metrics, returning the first error.
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.verifyTotal,
		m.verifyDuration,
		m.decisionsTotal,
		m.sharedFlights,
		m.cacheWriteErrors,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordVerify records one call to the identity authority.
func (m *Metrics) RecordVerify(mode, outcome string, duration time.Duration) {
	m.verifyTotal.WithLabelValues(mode, outcome).Inc()
	m.verifyDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordDecision records an authorization decision.
func (m *Metrics) RecordDecision(outcome, source string) {
	m.decisionsTotal.WithLabelValues(outcome, source).Inc()
}

// RecordSharedFlight records a miss served by another caller's verification.
func (m *Metrics) RecordSharedFlight() {
	m.sharedFlights.Inc()
}

// RecordCacheWriteError records a failed cache write.
func (m *Metrics) RecordCacheWriteError() {
	m.cacheWriteErrors.Inc()
}
