package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthyCheck(_ context.Context) Check {
	return Check{Status: StatusHealthy}
}

func TestChecker_Health(t *testing.T) {
	t.Parallel()

	c := NewChecker("1.2.3")
	resp := c.Health()

	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.NotEmpty(t, resp.Uptime)
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   Status
	}{
		{
			name: "no checks",
			want: StatusHealthy,
		},
		{
			name:   "all healthy",
			checks: map[string]CheckFunc{"a": healthyCheck, "b": healthyCheck},
			want:   StatusHealthy,
		},
		{
			name: "degraded wins over healthy",
			checks: map[string]CheckFunc{
				"a": healthyCheck,
				"b": func(context.Context) Check { return Check{Status: StatusDegraded} },
			},
			want: StatusDegraded,
		},
		{
			name: "unhealthy wins over degraded",
			checks: map[string]CheckFunc{
				"a": func(context.Context) Check { return Check{Status: StatusUnhealthy} },
				"b": func(context.Context) Check { return Check{Status: StatusDegraded} },
			},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewChecker("test")
			for name, fn := range tt.checks {
				c.RegisterCheck(name, fn)
			}

			resp := c.Readiness(context.Background())
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))
		})
	}
}

func TestChecker_ReadinessTimeout(t *testing.T) {
	t.Parallel()

	c := NewChecker("test", WithTimeout(20*time.Millisecond))
	c.RegisterCheck("slow", func(ctx context.Context) Check {
		<-ctx.Done()
		return Check{Status: StatusUnhealthy, Message: ctx.Err().Error()}
	})

	start := time.Now()
	resp := c.Readiness(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestChecker_Draining(t *testing.T) {
	t.Parallel()

	c := NewChecker("test")
	c.RegisterCheck("ok", healthyCheck)
	c.SetDraining(true)

	assert.True(t, c.IsDraining())
	resp := c.Readiness(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks, "draining")

	c.SetDraining(false)
	assert.Equal(t, StatusHealthy, c.Readiness(context.Background()).Status)
}

func TestChecker_RegisterAndUnregister(t *testing.T) {
	t.Parallel()

	c := NewChecker("test")
	c.RegisterCheck("b", healthyCheck)
	c.RegisterCheck("a", healthyCheck)
	assert.Equal(t, []string{"a", "b"}, c.Names())

	c.UnregisterCheck("a")
	assert.Equal(t, []string{"b"}, c.Names())
}

func TestHandlers(t *testing.T) {
	t.Parallel()

	c := NewChecker("test")
	c.RegisterCheck("down", func(context.Context) Check {
		return Check{Status: StatusUnhealthy, Message: "nope"}
	})

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, StatusHealthy, resp.Status)
	})

	t.Run("readiness", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp ReadinessResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "nope", resp.Checks["down"].Message)
	})

	t.Run("liveness", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})
}
