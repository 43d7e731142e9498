package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// SetRoute labels the request with the matched route name.
func SetRoute(c *gin.Context, name string) {
	c.Set(RouteKey, name)
}

// GetRoute returns the matched route name, or "" before routing.
func GetRoute(c *gin.Context) string {
	return c.GetString(RouteKey)
}

// Metrics returns a middleware that records request counts, latencies and
// in-flight requests. Requests that never matched a route are labelled
// "unmatched" to keep label cardinality bounded.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		m.IncActiveRequests()
		defer m.DecActiveRequests()

		c.Next()

		route := GetRoute(c)
		if route == "" {
			route = observability.UnmatchedRoute
		}
		m.RecordRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
