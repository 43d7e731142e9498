// Package redisclient opens the Redis connection shared by the rate limit
// store and the verification cache.
package redisclient

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/bifrost/internal/config"
	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// Config holds connection settings for Redis.
type Config struct {
	Address  string
	Password string
	DB       int

	// Connection pool settings
	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// InitialBackoff is the first wait between connection attempts.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between connection attempts.
	MaxBackoff time.Duration

	// ConnectionRetries is the number of retries after the first attempt.
	ConnectionRetries int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Address:           config.DefaultRedisAddress,
		PoolSize:          10,
		MinIdleConns:      2,
		MaxRetries:        3,
		DialTimeout:       5 * time.Second,
		ReadTimeout:       3 * time.Second,
		WriteTimeout:      3 * time.Second,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		ConnectionRetries: 5,
	}
}

// FromGatewayConfig converts the redis section of the gateway config.
func FromGatewayConfig(cfg *config.RedisConfig) *Config {
	c := DefaultConfig()
	c.Address = cfg.Address
	c.Password = cfg.Password
	c.DB = cfg.DB
	if cfg.PoolSize > 0 {
		c.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		c.DialTimeout = cfg.DialTimeout.Duration()
	}
	if cfg.ReadTimeout > 0 {
		c.ReadTimeout = cfg.ReadTimeout.Duration()
	}
	if cfg.WriteTimeout > 0 {
		c.WriteTimeout = cfg.WriteTimeout.Duration()
	}
	return c
}

// Connect creates a client and waits until Redis answers PING, retrying
// with decorrelated jitter backoff.
func Connect(ctx context.Context, cfg *Config, logger observability.Logger) (*redis.Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := connectWithRetry(ctx, client, cfg, buildConnectionConfig(cfg), logger); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis connected",
		observability.String("address", cfg.Address),
		observability.Int("db", cfg.DB),
	)

	return client, nil
}

// connectionConfig holds normalized connection retry settings.
type connectionConfig struct {
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	totalTimeout   time.Duration
}

func buildConnectionConfig(cfg *Config) *connectionConfig {
	maxRetries := cfg.ConnectionRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = 100 * time.Millisecond
	}

	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Second
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	totalTimeout := time.Duration(maxRetries+1) * (dialTimeout + maxBackoff)
	if totalTimeout > 2*time.Minute {
		totalTimeout = 2 * time.Minute
	}

	return &connectionConfig{
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		totalTimeout:   totalTimeout,
	}
}

func connectWithRetry(
	ctx context.Context,
	client *redis.Client,
	cfg *Config,
	connConfig *connectionConfig,
	logger observability.Logger,
) error {
	backoff := newDecorrelatedJitterBackoff(connConfig.initialBackoff, connConfig.maxBackoff)

	overallCtx, overallCancel := context.WithTimeout(ctx, connConfig.totalTimeout)
	defer overallCancel()

	var lastErr error
	for attempt := 0; attempt <= connConfig.maxRetries; attempt++ {
		if err := overallCtx.Err(); err != nil {
			return fmt.Errorf("redis connection timeout exceeded: %w", err)
		}

		pingCtx, cancel := context.WithTimeout(overallCtx, cfg.DialTimeout)
		lastErr = client.Ping(pingCtx).Err()
		cancel()

		if lastErr == nil {
			if attempt > 0 {
				logger.Info("redis connection established after retry",
					observability.String("address", cfg.Address),
					observability.Int("attempt", attempt+1),
				)
			}
			return nil
		}

		GetMetrics().connectionErrors.Inc()

		if attempt >= connConfig.maxRetries {
			break
		}

		wait := backoff.next(attempt)
		logger.Debug("redis connection failed, retrying",
			observability.String("address", cfg.Address),
			observability.Int("attempt", attempt+1),
			observability.Int("max_retries", connConfig.maxRetries),
			observability.Duration("backoff", wait),
			observability.Error(lastErr),
		)
		GetMetrics().connectionRetries.Inc()

		select {
		case <-overallCtx.Done():
			return fmt.Errorf("redis connection timeout exceeded during backoff: %w", overallCtx.Err())
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("failed to connect to redis after %d attempts: %w", connConfig.maxRetries+1, lastErr)
}

// decorrelatedJitterBackoff implements AWS-style decorrelated jitter backoff.
type decorrelatedJitterBackoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newDecorrelatedJitterBackoff(initial, maxDuration time.Duration) *decorrelatedJitterBackoff {
	return &decorrelatedJitterBackoff{
		initial: initial,
		max:     maxDuration,
		current: initial,
	}
}

// next returns min(cap, random_between(base, previous * 3)).
func (b *decorrelatedJitterBackoff) next(attempt int) time.Duration {
	if attempt == 0 {
		b.current = b.initial
		return b.current
	}

	minBackoff := float64(b.initial)
	maxBackoff := float64(b.current) * 3

	//nolint:gosec // jitter does not need a cryptographic source
	backoff := minBackoff + rand.Float64()*(maxBackoff-minBackoff)
	if backoff > float64(b.max) {
		backoff = float64(b.max)
	}

	b.current = time.Duration(backoff)
	return b.current
}
