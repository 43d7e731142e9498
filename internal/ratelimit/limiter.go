// Package ratelimit provides per-client admission control for the gateway.
// The default algorithm is a fixed window anchored to the first request
// seen for each client.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a client may proceed.
type Limiter interface {
	// Allow records one request for key and reports the decision.
	Allow(ctx context.Context, key string) (*Result, error)

	// Reset forgets the state held for key.
	Reset(ctx context.Context, key string) error

	// Close releases resources held by the limiter.
	Close() error
}

// Result represents the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed per window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAfter is the duration until the window resets.
	ResetAfter time.Duration

	// RetryAfter is the duration to wait before retrying. Zero when allowed.
	RetryAfter time.Duration
}

// NoopLimiter is a rate limiter that always allows requests.
type NoopLimiter struct{}

// NewNoopLimiter creates a new noop limiter.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(_ context.Context, _ string) (*Result, error) {
	return &Result{Allowed: true}, nil
}

// Reset implements Limiter.
func (l *NoopLimiter) Reset(_ context.Context, _ string) error {
	return nil
}

// Close implements Limiter.
func (l *NoopLimiter) Close() error {
	return nil
}
