package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/bifrost/internal/circuitbreaker"
)

// RedisCheck pings the shared Redis client. Redis backs the rate limiter
// and the verification cache, so an unreachable server is unhealthy.
func RedisCheck(client redis.UniversalClient) CheckFunc {
	return func(ctx context.Context) Check {
		if client == nil {
			return Check{Status: StatusUnhealthy, Message: "redis client is nil"}
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("redis ping failed: %v", err)}
		}
		return Check{Status: StatusHealthy}
	}
}

// BreakerCheck reports degraded while any breaker in the registry is open.
// Requests to other routes still succeed, so it never fails readiness.
func BreakerCheck(registry *circuitbreaker.Registry) CheckFunc {
	return func(_ context.Context) Check {
		var open []string
		for name, state := range registry.States() {
			if state == gobreaker.StateOpen {
				open = append(open, name)
			}
		}
		if len(open) == 0 {
			return Check{Status: StatusHealthy}
		}
		sort.Strings(open)
		return Check{Status: StatusDegraded, Message: "open: " + strings.Join(open, ",")}
	}
}

// HTTPCheck reports degraded when url cannot be reached or answers with a
// server error. Any other answer means the service is up.
func HTTPCheck(client *http.Client, url string) CheckFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) Check {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("failed to create request: %v", err)}
		}
		resp, err := client.Do(req)
		if err != nil {
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("failed to connect: %v", err)}
		}
		_ = resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("unhealthy status code: %d", resp.StatusCode)}
		}
		return Check{Status: StatusHealthy}
	}
}
