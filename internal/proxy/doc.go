// Package proxy forwards requests to route backends.
//
// Forwarder relays a request to the backend of a router.RouteRule with the
// route prefix stripped from the path. Method, headers, query and body are
// preserved, X-Forwarded-* headers are set and the backend response is
// relayed verbatim. Each call is bounded by the route timeout and guarded
// by the route's circuit breaker when breakers are enabled.
//
// Failures never produce a backend-looking response: a transport failure
// answers 502, a timeout 504 and an open circuit 503, written through the
// configured ErrorHandler.
//
//	fwd := proxy.NewForwarder(
//	    proxy.WithLogger(logger),
//	    proxy.WithBreakers(circuitbreaker.NewRegistry(&cfg.CircuitBreaker, logger)),
//	)
//	fwd.Forward(w, r, rule)
package proxy
