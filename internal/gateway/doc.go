// Package gateway assembles the request pipeline of the gateway.
//
// Every request passes, in order, through panic recovery, request ID
// assignment and access logging, a server span, request metrics and the
// per-client rate limiter. It is then resolved against the route table,
// authorized when the route requires it and forwarded to the route's
// backend. The health endpoints /healthz and /readyz sit behind recovery,
// tracing and metrics only.
//
// # Usage
//
//	gw, err := gateway.New(cfg, routes,
//	    gateway.WithLogger(logger),
//	    gateway.WithMetrics(metrics),
//	    gateway.WithLimiter(limiter),
//	    gateway.WithAuthorizer(gate),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := gw.Start(ctx); err != nil {
//	    return err
//	}
//	defer gw.Stop(ctx)
package gateway
