package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "ratelimit:", WithOwnedClient())
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_Take(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		w, err := s.Take(ctx, "10.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, w.Allowed)
		assert.Equal(t, int64(i), w.Count)
		assert.Equal(t, time.Minute, w.ResetAfter)
	}

	w, err := s.Take(ctx, "10.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, w.Allowed)
	assert.Equal(t, int64(3), w.Count)

	assert.True(t, mr.Exists("ratelimit:10.0.0.1"))
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:10.0.0.1"))
}

func TestRedisStore_WindowExpires(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.Take(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	mr.FastForward(30 * time.Second)
	w, err := s.Take(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, w.Allowed)
	assert.Equal(t, 30*time.Second, w.ResetAfter)

	mr.FastForward(30 * time.Second)
	w, err = s.Take(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, w.Allowed)
	assert.Equal(t, int64(1), w.Count)
}

func TestRedisStore_KeyWithoutExpiry(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	require.NoError(t, mr.Set("ratelimit:stuck", "5"))

	w, err := s.Take(context.Background(), "stuck", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, w.Allowed)
	assert.Equal(t, time.Minute, w.ResetAfter)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:stuck"))
}

func TestRedisStore_Concurrent(t *testing.T) {
	t.Parallel()

	s, _ := newTestRedisStore(t)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				w, err := s.Take(context.Background(), "shared", 50, time.Minute)
				if err == nil && w.Allowed {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), admitted.Load())
}

func TestRedisStore_Reset(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.Take(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx, "k"))
	assert.False(t, mr.Exists("ratelimit:k"))
}

func TestRedisStore_Errors(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t)
	mr.Close()

	_, err := s.Take(context.Background(), "k", 1, time.Minute)
	assert.Error(t, err)
	assert.Error(t, s.Reset(context.Background(), "k"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Take(ctx, "k", 1, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisStore_CloseSharedClient(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "")
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.NoError(t, client.Ping(context.Background()).Err(), "shared client stays open")
}

func TestRedisMetrics_MustRegister(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { GetRedisMetrics().MustRegister(prometheus.NewRegistry()) })
}
