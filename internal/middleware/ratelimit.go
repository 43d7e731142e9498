package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/bifrost/internal/observability"
	"github.com/vyrodovalexey/bifrost/internal/ratelimit"
)

// Rate limit outcomes recorded in metrics.
const (
	rateLimitAllowed = "allowed"
	rateLimitDenied  = "denied"
	rateLimitError   = "error"
)

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	// Limiter is the rate limiter to use.
	Limiter ratelimit.Limiter

	// KeyFunc extracts the rate limit key from the request.
	KeyFunc ratelimit.KeyFunc

	Logger  observability.Logger
	Metrics *observability.Metrics

	// SkipPaths is a list of paths to skip rate limiting.
	SkipPaths []string

	// ErrorHandler is called when rate limit is exceeded. It must abort
	// the chain.
	ErrorHandler gin.HandlerFunc

	// Now is the clock used for X-RateLimit-Reset.
	Now func() time.Time
}

// RateLimit returns a middleware that admits each client at most Limit
// requests per window. A failing store admits the request: losing the
// limiter must not take the gateway down.
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	if config.Limiter == nil {
		config.Limiter = ratelimit.NewNoopLimiter()
	}
	if config.KeyFunc == nil {
		config.KeyFunc = ratelimit.ClientIPKeyFunc(false)
	}
	if config.Logger == nil {
		config.Logger = observability.NopLogger()
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = func(c *gin.Context) {
			AbortWithError(c, http.StatusTooManyRequests, MessageRateLimited)
		}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	skipPaths := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	record := func(outcome string) {
		if config.Metrics != nil {
			config.Metrics.RecordRateLimit(outcome)
		}
	}

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		key := config.KeyFunc(c.Request)
		result, err := config.Limiter.Allow(c.Request.Context(), key)
		if err != nil {
			record(rateLimitError)
			config.Logger.WithContext(c.Request.Context()).Warn("rate limit check failed, admitting request",
				observability.String("key", key),
				observability.Error(err),
			)
			c.Next()
			return
		}

		if result.Limit > 0 {
			c.Header(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
			c.Header(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
			c.Header(HeaderRateLimitReset,
				strconv.FormatInt(config.Now().Add(result.ResetAfter).Unix(), 10))
		}

		if !result.Allowed {
			record(rateLimitDenied)
			c.Header(HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(result.RetryAfter)))

			config.Logger.WithContext(c.Request.Context()).Debug("rate limit exceeded",
				observability.String("key", key),
				observability.Int("limit", result.Limit),
			)

			config.ErrorHandler(c)
			c.Abort()
			return
		}

		record(rateLimitAllowed)
		c.Next()
	}
}

// retryAfterSeconds rounds up so a client that waits the advertised time
// lands in the next window.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}
