package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// RedisMetrics holds Prometheus metrics for Redis store operations.
type RedisMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

var (
	redisMetricsInstance *RedisMetrics
	redisMetricsOnce     sync.Once
)

// GetRedisMetrics returns the singleton Redis store metrics instance.
func GetRedisMetrics() *RedisMetrics {
	redisMetricsOnce.Do(func() {
		redisMetricsInstance = &RedisMetrics{
			operationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "ratelimit_redis",
					Name:      "operations_total",
					Help:      "Total number of Redis rate limit store operations",
				},
				[]string{"operation", "status"},
			),
			operationDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "gateway",
					Subsystem: "ratelimit_redis",
					Name:      "operation_duration_seconds",
					Help:      "Duration of Redis rate limit store operations in seconds",
					Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
				},
				[]string{"operation"},
			),
		}
	})
	return redisMetricsInstance
}

// MustRegister registers the collectors with a custom registry.
func (m *RedisMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.operationsTotal, m.operationDuration)
}

// takeScript admits a request when the key's count is below the limit.
// The expiry is set on the first increment, which anchors the window to the
// first request seen for the key.
//
// KEYS[1] = counter key
// ARGV[1] = limit
// ARGV[2] = window in milliseconds
// Returns: {allowed (0 or 1), count, ttl in ms}
var takeScript = redis.NewScript(`
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local count = tonumber(redis.call('GET', KEYS[1]) or '0')

	local allowed = 0
	if count < limit then
		count = redis.call('INCR', KEYS[1])
		if count == 1 then
			redis.call('PEXPIRE', KEYS[1], window)
		end
		allowed = 1
	end

	local ttl = redis.call('PTTL', KEYS[1])
	if ttl == -1 then
		redis.call('PEXPIRE', KEYS[1], window)
		ttl = window
	elseif ttl == -2 then
		ttl = window
	end

	return {allowed, count, ttl}
`)

// RedisStore implements Store on Redis so several gateway instances share
// one set of windows.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	logger observability.Logger

	mu        sync.Mutex
	closed    bool
	ownClient bool
}

// RedisOption is a functional option for the Redis store.
type RedisOption func(*RedisStore)

// WithRedisLogger sets the logger.
func WithRedisLogger(logger observability.Logger) RedisOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// WithOwnedClient makes Close also close the client.
func WithOwnedClient() RedisOption {
	return func(s *RedisStore) {
		s.ownClient = true
	}
}

// NewRedisStore creates a store on an existing client. Keys are written
// as prefix+key.
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: prefix,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) prefixKey(key string) string {
	return s.prefix + key
}

// Take implements Store using a Lua script for atomicity.
func (s *RedisStore) Take(ctx context.Context, key string, limit int, window time.Duration) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, fmt.Errorf("context error before redis take: %w", err)
	}

	windowMs := window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}

	start := time.Now()
	result, err := takeScript.Run(ctx, s.client, []string{s.prefixKey(key)}, limit, windowMs).Int64Slice()
	GetRedisMetrics().operationDuration.WithLabelValues("take").Observe(time.Since(start).Seconds())

	if err != nil {
		GetRedisMetrics().operationsTotal.WithLabelValues("take", "error").Inc()
		return Window{}, fmt.Errorf("redis take script error: %w", err)
	}
	if len(result) != 3 {
		GetRedisMetrics().operationsTotal.WithLabelValues("take", "error").Inc()
		return Window{}, fmt.Errorf("redis take script returned %d values, want 3", len(result))
	}

	GetRedisMetrics().operationsTotal.WithLabelValues("take", "success").Inc()
	return Window{
		Allowed:    result[0] == 1,
		Count:      result[1],
		ResetAfter: time.Duration(result[2]) * time.Millisecond,
	}, nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	start := time.Now()
	err := s.client.Del(ctx, s.prefixKey(key)).Err()
	GetRedisMetrics().operationDuration.WithLabelValues("reset").Observe(time.Since(start).Seconds())

	if err != nil {
		GetRedisMetrics().operationsTotal.WithLabelValues("reset", "error").Inc()
		return fmt.Errorf("redis del error: %w", err)
	}

	GetRedisMetrics().operationsTotal.WithLabelValues("reset", "success").Inc()
	return nil
}

// Close implements Store. The client is closed only when the store owns
// it. Close is idempotent.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}
