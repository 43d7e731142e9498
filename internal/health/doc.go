// Package health provides the liveness and readiness endpoints of the
// gateway.
//
// Readiness aggregates named checks. A check reports healthy, degraded or
// unhealthy; only an unhealthy check turns the readiness probe into a 503.
//
//	checker := health.NewChecker(version)
//	checker.RegisterCheck("redis", health.RedisCheck(client))
//	mux.Handle("/ready", checker.ReadinessHandler())
package health
