package secrets

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for secrets provider operations.
type Metrics struct {
	operationDuration *prometheus.HistogramVec
	operationTotal    *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton secrets metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			operationDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "gateway",
					Subsystem: "secrets",
					Name:      "operation_duration_seconds",
					Help:      "Duration of secrets provider operations in seconds",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"provider", "operation", "result"},
			),
			operationTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "secrets",
					Name:      "operation_total",
					Help:      "Total number of secrets provider operations",
				},
				[]string{"provider", "operation", "result"},
			),
		}
	})
	return metricsInstance
}

// MustRegister registers the collectors with the given registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.operationDuration, m.operationTotal)
}

// RecordOperation records metrics for a secrets provider operation.
func (m *Metrics) RecordOperation(provider ProviderType, operation string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.operationDuration.WithLabelValues(string(provider), operation, result).Observe(duration.Seconds())
	m.operationTotal.WithLabelValues(string(provider), operation, result).Inc()
}
