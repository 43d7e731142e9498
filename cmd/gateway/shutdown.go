package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/bifrost/internal/config"
	"github.com/vyrodovalexey/bifrost/internal/observability"
)

const defaultShutdownTimeout = 30 * time.Second

// run starts the gateway and blocks until ctx is cancelled or the process
// receives SIGINT or SIGTERM, then shuts everything down.
func run(ctx context.Context, app *application, configPath string) error {
	if err := app.gateway.Start(ctx); err != nil {
		app.closeResources()
		return fmt.Errorf("start gateway: %w", err)
	}

	startMetricsServer(app)

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	watcher := startConfigWatcher(watchCtx, app, configPath)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	app.logger.Info("shutdown requested")

	return shutdown(app, watcher)
}

// shutdown drains the gateway and releases resources. The gateway stops
// before the metrics listener so /ready reports draining while in-flight
// requests finish.
func shutdown(app *application, watcher *config.Watcher) error {
	logger := app.logger

	timeout := app.config.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn("failed to stop config watcher", observability.Error(err))
		}
		app.reloadMetrics.configWatcherStatus.Set(0)
	}

	var stopErr error
	if err := app.gateway.Stop(ctx); err != nil {
		logger.Error("failed to stop gateway gracefully", observability.Error(err))
		stopErr = err
	}

	if app.metricsServer != nil {
		logger.Info("stopping metrics server")
		if err := app.metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	app.closeResources()

	logger.Info("shutdown complete")
	return stopErr
}
