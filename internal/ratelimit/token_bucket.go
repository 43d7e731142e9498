package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// Token bucket cleanup defaults.
const (
	DefaultBucketTTL       = 10 * time.Minute
	DefaultCleanupInterval = time.Minute
)

// bucket holds a client's limiter and its last access time for TTL-based
// cleanup.
type bucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// TokenBucketLimiter refills limit tokens per window with a burst
// capacity, smoothing traffic instead of resetting at window edges. State
// is kept in process memory.
type TokenBucketLimiter struct {
	rate   rate.Limit
	burst  int
	limit  int
	logger observability.Logger

	mu      sync.Mutex
	buckets map[string]*bucket

	bucketTTL time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewTokenBucketLimiter creates a token bucket limiter refilling limit
// tokens every window. It starts a cleanup goroutine; call Close to stop it.
func NewTokenBucketLimiter(limit int, window time.Duration, burst int, logger observability.Logger) *TokenBucketLimiter {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if burst <= 0 {
		burst = limit
	}

	l := &TokenBucketLimiter{
		rate:      rate.Limit(float64(limit) / window.Seconds()),
		burst:     burst,
		limit:     limit,
		logger:    logger,
		buckets:   make(map[string]*bucket),
		bucketTTL: DefaultBucketTTL,
		stopCh:    make(chan struct{}),
	}

	go l.cleanupLoop(DefaultCleanupInterval)

	return l
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastAccess = now
	limiter := b.limiter
	l.mu.Unlock()

	allowed := limiter.AllowN(now, 1)
	tokens := limiter.TokensAt(now)

	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:    allowed,
		Limit:      l.burst,
		Remaining:  remaining,
		ResetAfter: l.durationFor(float64(l.burst) - tokens),
	}
	if !allowed {
		result.RetryAfter = l.durationFor(1 - tokens)
	}

	return result, nil
}

// durationFor returns how long it takes to refill n tokens.
func (l *TokenBucketLimiter) durationFor(n float64) time.Duration {
	if n <= 0 || l.rate <= 0 {
		return 0
	}
	return time.Duration(n / float64(l.rate) * float64(time.Second))
}

// Reset implements Limiter.
func (l *TokenBucketLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
	return nil
}

// Close implements Limiter. It is safe to call more than once.
func (l *TokenBucketLimiter) Close() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	return nil
}

func (l *TokenBucketLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

// cleanup removes buckets not accessed within the TTL.
func (l *TokenBucketLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastAccess) > l.bucketTTL {
			delete(l.buckets, key)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("cleaned up idle token buckets",
			observability.Int("removed", removed),
			observability.Int("remaining", len(l.buckets)),
		)
	}
}
