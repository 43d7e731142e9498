package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketLimiter_Burst(t *testing.T) {
	t.Parallel()

	l := NewTokenBucketLimiter(60, time.Minute, 5, nil)
	t.Cleanup(func() { _ = l.Close() })

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		res, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 5, res.Limit)
	}

	res, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Second)

	other, err := l.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestTokenBucketLimiter_DefaultBurst(t *testing.T) {
	t.Parallel()

	l := NewTokenBucketLimiter(3, time.Minute, 0, nil)
	t.Cleanup(func() { _ = l.Close() })

	assert.Equal(t, 3, l.burst)
}

func TestTokenBucketLimiter_ResetAndCleanup(t *testing.T) {
	t.Parallel()

	l := NewTokenBucketLimiter(1, time.Hour, 1, nil)
	t.Cleanup(func() { _ = l.Close() })

	ctx := context.Background()
	_, _ = l.Allow(ctx, "k")
	res, _ := l.Allow(ctx, "k")
	require.False(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, "k"))
	res, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	l.cleanup(time.Now().Add(DefaultBucketTTL + time.Second))
	l.mu.Lock()
	assert.Empty(t, l.buckets)
	l.mu.Unlock()

	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

func TestTokenBucketLimiter_ContextCanceled(t *testing.T) {
	t.Parallel()

	l := NewTokenBucketLimiter(1, time.Second, 1, nil)
	t.Cleanup(func() { _ = l.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Allow(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
