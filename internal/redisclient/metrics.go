package redisclient

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for Redis connection handling.
type Metrics struct {
	connectionRetries prometheus.Counter
	connectionErrors  prometheus.Counter
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			connectionRetries: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "redis",
				Name:      "connection_retries_total",
				Help:      "Total number of Redis connection retry attempts",
			}),
			connectionErrors: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "redis",
				Name:      "connection_errors_total",
				Help:      "Total number of failed Redis connection attempts",
			}),
		}
	})
	return metricsInstance
}

// MustRegister registers the collectors with a custom registry so they are
// served next to the pipeline metrics.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.connectionRetries, m.connectionErrors)
}
