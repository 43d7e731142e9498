package proxy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// proxyMetrics contains Prometheus metrics for proxy operations.
type proxyMetrics struct {
	errorsTotal     *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
}

var (
	proxyMetricsInstance *proxyMetrics
	proxyMetricsOnce     sync.Once
)

// InitMetrics initializes the proxy metrics with the given Prometheus
// registry. If registry is nil, metrics are registered with the default
// registerer. Only the first call has an effect.
func InitMetrics(registry *prometheus.Registry) {
	proxyMetricsOnce.Do(func() {
		var registerer prometheus.Registerer
		if registry != nil {
			registerer = registry
		} else {
			registerer = prometheus.DefaultRegisterer
		}
		factory := promauto.With(registerer)
		proxyMetricsInstance = &proxyMetrics{
			errorsTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "proxy",
					Name:      "errors_total",
					Help:      "Total number of failed forwards",
				},
				[]string{"route", "error_type"},
			),
			backendDuration: factory.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "gateway",
					Subsystem: "proxy",
					Name:      "backend_duration_seconds",
					Help:      "Duration of backend requests",
					Buckets: []float64{
						.001, .005, .01, .025,
						.05, .1, .25, .5,
						1, 2.5, 5, 10, 30,
					},
				},
				[]string{"route"},
			),
		}
	})
}

// InitVecMetrics pre-populates the label combinations of routes so the
// series appear in /metrics right after startup.
func InitVecMetrics(routes ...string) {
	m := getProxyMetrics()
	for _, route := range routes {
		for _, et := range []string{"unavailable", "timeout", "circuit_open", "client_canceled", "too_large"} {
			m.errorsTotal.WithLabelValues(route, et)
		}
		m.backendDuration.WithLabelValues(route)
	}
}

// getProxyMetrics returns the singleton proxy metrics instance, lazily
// registered with the default registerer when InitMetrics was not called.
func getProxyMetrics() *proxyMetrics {
	InitMetrics(nil)
	return proxyMetricsInstance
}
