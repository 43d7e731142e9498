// Package store provides the counter backends behind the fixed window rate
// limiter.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("rate limit store closed")

// Window is the state of one key's counting window after a Take.
type Window struct {
	// Count is the number of admitted requests in the current window.
	Count int64

	// Allowed reports whether the request that produced this state was
	// admitted.
	Allowed bool

	// ResetAfter is the time left until the window ends and the count
	// starts over.
	ResetAfter time.Duration
}

// Store keeps per-key request counts. A window starts at the first request
// seen for a key and lasts for the given duration; it is not aligned to
// wall-clock boundaries.
//
// Take must be atomic per key: concurrent callers for the same key never
// admit more than limit requests in one window.
type Store interface {
	// Take records one request for key and reports whether it fits in
	// the current window. Rejected requests do not consume capacity.
	Take(ctx context.Context, key string, limit int, window time.Duration) (Window, error)

	// Reset forgets the window for key.
	Reset(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}
