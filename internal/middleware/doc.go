// Package middleware provides the gin middleware of the gateway request
// pipeline.
//
// The gateway installs them in this order, outermost first:
//
//	engine.Use(
//	    middleware.Recovery(logger, metrics),
//	    middleware.RequestID(),
//	    middleware.Logging(logger),
//	    middleware.Tracing(),
//	    middleware.Metrics(metrics),
//	    middleware.RateLimit(middleware.RateLimitConfig{Limiter: limiter}),
//	)
//
// Handlers further down the chain label the request with SetRoute so that
// metrics, access logs and spans carry the matched route name.
package middleware
