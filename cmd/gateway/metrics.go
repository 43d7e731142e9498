package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/vyrodovalexey/bifrost/internal/health"
	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// createMetricsServer builds the metrics and health listener that runs
// beside the gateway. It serves the Prometheus endpoint plus /health,
// /ready and /live for orchestrators.
func createMetricsServer(
	port int,
	path string,
	metrics *observability.Metrics,
	checker *health.Checker,
) *http.Server {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	mux.HandleFunc("/health", checker.HealthHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/live", checker.LivenessHandler())

	return &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// startMetricsServer starts the metrics listener in the background when
// metrics are enabled.
func startMetricsServer(app *application) {
	mc := app.config.Observability.Metrics
	if !mc.Enabled {
		return
	}

	app.metricsServer = createMetricsServer(mc.Port, mc.Path, app.metrics, app.healthChecker)
	logger := app.logger

	go func() {
		logger.Info("starting metrics server",
			observability.Int("port", mc.Port),
			observability.String("path", mc.Path),
		)
		if err := app.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", observability.Error(err))
		}
	}()
}
