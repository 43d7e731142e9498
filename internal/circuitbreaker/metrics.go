package circuitbreaker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for circuit breakers.
type Metrics struct {
	stateGauge       *prometheus.GaugeVec
	transitionsTotal *prometheus.CounterVec
	requestsTotal    *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton circuit breaker metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			stateGauge: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "gateway",
					Subsystem: "circuit_breaker",
					Name:      "state",
					Help:      "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
				},
				[]string{"name"},
			),
			transitionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "circuit_breaker",
					Name:      "transitions_total",
					Help:      "Total number of circuit breaker state transitions",
				},
				[]string{"name", "from", "to"},
			),
			requestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "circuit_breaker",
					Name:      "requests_total",
					Help:      "Total number of calls through circuit breakers by result",
				},
				[]string{"name", "result"},
			),
		}
	})
	return metricsInstance
}

// MustRegister registers the collectors with the given registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.stateGauge, m.transitionsTotal, m.requestsTotal)
}
