package ratelimit

import (
	"context"
	"time"

	"github.com/vyrodovalexey/bifrost/internal/observability"
	"github.com/vyrodovalexey/bifrost/internal/ratelimit/store"
)

// FixedWindowLimiter admits up to limit requests per key in a window that
// opens with the key's first request. Counting is delegated to a Store so
// the same limiter works in memory or across instances on Redis.
type FixedWindowLimiter struct {
	store  store.Store
	limit  int
	window time.Duration
	logger observability.Logger
}

// NewFixedWindowLimiter creates a new fixed window rate limiter.
func NewFixedWindowLimiter(s store.Store, limit int, window time.Duration, logger observability.Logger) *FixedWindowLimiter {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if s == nil {
		s = store.NewMemoryStore()
	}

	return &FixedWindowLimiter{
		store:  s,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// Allow implements Limiter.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	w, err := l.store.Take(ctx, key, l.limit, l.window)
	if err != nil {
		return nil, err
	}

	remaining := l.limit - int(w.Count)
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := w.ResetAfter
	if resetAfter < 0 {
		resetAfter = 0
	}

	var retryAfter time.Duration
	if !w.Allowed {
		retryAfter = resetAfter
		l.logger.Debug("fixed window exhausted",
			observability.String("key", key),
			observability.Int64("count", w.Count),
			observability.Duration("reset_after", resetAfter),
		)
	}

	return &Result{
		Allowed:    w.Allowed,
		Limit:      l.limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
		RetryAfter: retryAfter,
	}, nil
}

// Reset implements Limiter.
func (l *FixedWindowLimiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

// Close implements Limiter.
func (l *FixedWindowLimiter) Close() error {
	return l.store.Close()
}
