// Package observability provides logging, metrics, and tracing
// functionality for the gateway.
//
// # Logging
//
// The Logger interface wraps zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request forwarded",
//	    observability.String("route", "asgard"),
//	    observability.Int("status", 200),
//	)
//
// Loggers created by NewLogger implement LevelSetter so the level can be
// changed while the process runs.
//
// # Metrics
//
// Pipeline metrics live on a dedicated registry served by Handler:
//
//	metrics := observability.NewMetrics("gateway")
//	mux.Handle("/metrics", metrics.Handler())
//
// # Tracing
//
// OpenTelemetry tracing with OTLP/gRPC export:
//
//	tracer, err := observability.NewTracer(observability.TracerConfig{
//	    ServiceName:  "bifrost",
//	    OTLPEndpoint: "otel-collector:4317",
//	    SamplingRate: 1.0,
//	    Enabled:      true,
//	})
//	defer tracer.Shutdown(ctx)
package observability
