package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/bifrost/internal/observability"
	"github.com/vyrodovalexey/bifrost/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	engine := gin.New()
	engine.Use(Recovery(observability.NewLoggerFromZap(zap.New(core)), nil))
	engine.GET("/boom", func(*gin.Context) { panic("secret detail") })

	rec := serve(engine, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error","message":"An unexpected error occurred"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret detail")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "panic recovered", logs.All()[0].Message)
}

func TestRecovery_CustomHandler(t *testing.T) {
	t.Parallel()

	engine := gin.New()
	engine.Use(RecoveryWithConfig(RecoveryConfig{
		PanicHandler: func(c *gin.Context, _ interface{}) {
			c.AbortWithStatus(http.StatusTeapot)
		},
	}))
	engine.GET("/boom", func(*gin.Context) { panic("x") })

	assert.Equal(t, http.StatusTeapot, serve(engine, httptest.NewRequest(http.MethodGet, "/boom", nil)).Code)
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, observability.RequestIDFromContext(c.Request.Context()))
	})

	t.Run("generated", func(t *testing.T) {
		rec := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
		id := rec.Header().Get(HeaderRequestID)
		assert.Len(t, id, 36)
		assert.Equal(t, id, rec.Body.String())
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "client-id")
		rec := serve(engine, req)
		assert.Equal(t, "client-id", rec.Header().Get(HeaderRequestID))
		assert.Equal(t, "client-id", rec.Body.String())
	})

	t.Run("oversized replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, strings.Repeat("x", 200))
		rec := serve(engine, req)
		assert.Len(t, rec.Header().Get(HeaderRequestID), 36)
	})
}

func TestLogging(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	engine := gin.New()
	engine.Use(RequestID(), Logging(observability.NewLoggerFromZap(zap.New(core))))
	engine.GET("/api/asgard/x", func(c *gin.Context) {
		SetRoute(c, "asgard")
		c.Status(http.StatusNotFound)
	})
	engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(engine, httptest.NewRequest(http.MethodGet, "/api/asgard/x", nil))
	serve(engine, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, 1, logs.Len(), "health probes are not logged")
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "asgard", fields["route"])
	assert.Equal(t, int64(http.StatusNotFound), fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	m := observability.NewMetrics("mwtest")
	engine := gin.New()
	engine.Use(Metrics(m))
	engine.GET("/api/asgard", func(c *gin.Context) {
		SetRoute(c, "asgard")
		c.Status(http.StatusOK)
	})

	serve(engine, httptest.NewRequest(http.MethodGet, "/api/asgard", nil))
	serve(engine, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	routes := map[string]bool{}
	for _, f := range families {
		if f.GetName() != "mwtest_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "route" {
					routes[label.GetValue()] = true
				}
			}
		}
	}
	assert.True(t, routes["asgard"])
	assert.True(t, routes[observability.UnmatchedRoute])
}

type stubLimiter struct {
	result *ratelimit.Result
	err    error
	keys   []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (*ratelimit.Result, error) {
	s.keys = append(s.keys, key)
	return s.result, s.err
}

func (s *stubLimiter) Reset(context.Context, string) error { return nil }
func (s *stubLimiter) Close() error                        { return nil }

func TestRateLimit_Denied(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	limiter := &stubLimiter{result: &ratelimit.Result{
		Allowed:    false,
		Limit:      100,
		Remaining:  0,
		ResetAfter: 30 * time.Second,
		RetryAfter: 1500 * time.Millisecond,
	}}
	m := observability.NewMetrics("rltest")

	engine := gin.New()
	engine.Use(RateLimit(RateLimitConfig{Limiter: limiter, Metrics: m, Now: func() time.Time { return now }}))
	engine.GET("/api/asgard", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/asgard", nil)
	req.RemoteAddr = "198.51.100.4:1234"
	rec := serve(engine, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too Many Requests","message":"Too many requests, please try again later."}`, rec.Body.String())
	assert.Equal(t, "100", rec.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))
	assert.Equal(t, "1700000030", rec.Header().Get(HeaderRateLimitReset))
	assert.Equal(t, "2", rec.Header().Get(HeaderRetryAfter))
	assert.Equal(t, []string{"198.51.100.4"}, limiter.keys)

	count, err := testutil.GatherAndCount(m.Registry(), "rltest_rate_limit_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRateLimit_AllowedAndSkipped(t *testing.T) {
	t.Parallel()

	limiter := &stubLimiter{result: &ratelimit.Result{Allowed: true, Limit: 10, Remaining: 9}}
	engine := gin.New()
	engine.Use(RateLimit(RateLimitConfig{Limiter: limiter, SkipPaths: []string{"/healthz"}}))
	engine.GET("/api/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(engine, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "9", rec.Header().Get(HeaderRateLimitRemaining))

	rec = serve(engine, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderRateLimitLimit))
	assert.Len(t, limiter.keys, 1)
}

func TestRateLimit_StoreFailureAdmits(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	limiter := &stubLimiter{err: errors.New("redis down")}
	engine := gin.New()
	engine.Use(RateLimit(RateLimitConfig{
		Limiter: limiter,
		Logger:  observability.NewLoggerFromZap(zap.New(core)),
	}))
	engine.GET("/api/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(engine, httptest.NewRequest(http.MethodGet, "/api/x", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("rate limit check failed, admitting request").Len())
}

func TestRetryAfterSeconds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 60, retryAfterSeconds(time.Minute))
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	engine := gin.New()
	engine.Use(BodyLimit(8))
	engine.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTracing(t *testing.T) {
	t.Parallel()

	engine := gin.New()
	engine.Use(Tracing())
	engine.GET("/", func(c *gin.Context) {
		assert.NotNil(t, GetSpan(c))
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}
