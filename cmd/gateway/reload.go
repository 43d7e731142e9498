package main

import (
	"context"
	"os"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/bifrost/internal/config"
	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// reloadMetrics holds Prometheus metrics for configuration reloads.
type reloadMetrics struct {
	configReloadTotal       *prometheus.CounterVec
	configReloadLastSuccess prometheus.Gauge
	configWatcherStatus     prometheus.Gauge
}

// newReloadMetrics creates reload metrics on the gateway registry.
func newReloadMetrics(m *observability.Metrics) *reloadMetrics {
	rm := &reloadMetrics{
		configReloadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "config_reload_total",
				Help:      "Total number of configuration reloads",
			},
			[]string{"result"},
		),
		configReloadLastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Name:      "config_reload_last_success_timestamp",
				Help:      "Timestamp of last successful config reload",
			},
		),
		configWatcherStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Name:      "config_watcher_running",
				Help:      "Whether the config file watcher is running (1=running, 0=stopped)",
			},
		),
	}

	m.MustRegisterCollector(
		rm.configReloadTotal,
		rm.configReloadLastSuccess,
		rm.configWatcherStatus,
	)
	return rm
}

// startConfigWatcher watches the configuration file. It returns nil when
// no file is in use or the watcher cannot be started; the gateway keeps
// running on the startup configuration either way.
func startConfigWatcher(ctx context.Context, app *application, configPath string) *config.Watcher {
	if configPath == "" {
		return nil
	}
	logger := app.logger
	rm := app.reloadMetrics

	watcher, err := config.NewWatcher(configPath,
		func(newCfg *config.Config) {
			logger.Info("configuration changed, reloading")
			applyReload(app, newCfg)
		},
		config.WithLogger(logger),
		config.WithLoadFunc(reloadLoader(os.LookupEnv)),
		config.WithErrorCallback(func(error) {
			rm.configReloadTotal.WithLabelValues("error").Inc()
		}),
	)
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		rm.configWatcherStatus.Set(0)
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		rm.configWatcherStatus.Set(0)
		_ = watcher.Stop()
		return nil
	}

	rm.configWatcherStatus.Set(1)
	return watcher
}

// applyReload applies the hot-reloadable part of newCfg. Only the log
// level changes at runtime; the route table and every component stay as
// built at startup, so other differences are reported for a restart.
func applyReload(app *application, newCfg *config.Config) {
	logger := app.logger

	if setter, ok := logger.(observability.LevelSetter); ok {
		level := newCfg.Observability.Logging.Level
		if level != "" && level != setter.Level() {
			if err := setter.SetLevel(level); err != nil {
				logger.Error("failed to apply log level",
					observability.String("level", level),
					observability.Error(err),
				)
				app.reloadMetrics.configReloadTotal.WithLabelValues("error").Inc()
				return
			}
			logger.Info("log level updated", observability.String("level", level))
		}
	}

	if changed := changedSections(app.config, newCfg); len(changed) > 0 {
		logger.Warn("configuration changes require a restart to take effect",
			observability.Strings("sections", changed),
		)
	}

	app.reloadMetrics.configReloadTotal.WithLabelValues("success").Inc()
	app.reloadMetrics.configReloadLastSuccess.Set(float64(time.Now().Unix()))
}

// changedSections lists the top-level sections that differ between the
// running and the new configuration, ignoring the log level and resolved
// secret values.
func changedSections(current, next *config.Config) []string {
	a, b := withoutRuntimeFields(current), withoutRuntimeFields(next)

	sections := []struct {
		name string
		a, b any
	}{
		{"server", a.Server, b.Server},
		{"identity", a.Identity, b.Identity},
		{"routes", a.Routes, b.Routes},
		{"rateLimit", a.RateLimit, b.RateLimit},
		{"cache", a.Cache, b.Cache},
		{"redis", a.Redis, b.Redis},
		{"circuitBreaker", a.CircuitBreaker, b.CircuitBreaker},
		{"secrets", a.Secrets, b.Secrets},
		{"observability", a.Observability, b.Observability},
	}

	var changed []string
	for _, s := range sections {
		if !reflect.DeepEqual(s.a, s.b) {
			changed = append(changed, s.name)
		}
	}
	return changed
}

func withoutRuntimeFields(cfg *config.Config) config.Config {
	c := *cfg
	c.Observability.Logging.Level = ""
	c.Identity.ClientSecret = ""
	c.Redis.Password = ""
	return c
}
