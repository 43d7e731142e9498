package ratelimit

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/bifrost/internal/config"
	"github.com/vyrodovalexey/bifrost/internal/observability"
	"github.com/vyrodovalexey/bifrost/internal/ratelimit/store"
)

// New builds the limiter described by cfg. client is required when cfg
// selects the redis store and is ignored otherwise; the limiter does not
// take ownership of it.
func New(cfg *config.RateLimitConfig, client redis.UniversalClient, logger observability.Logger) (Limiter, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg == nil || !cfg.Enabled {
		return NewNoopLimiter(), nil
	}

	window := cfg.Window.Duration()

	switch cfg.Algorithm {
	case config.AlgorithmFixedWindow, "":
		s, err := newStore(cfg, client, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("fixed window rate limiter initialized",
			observability.Int("max", cfg.Max),
			observability.Duration("window", window),
			observability.String("store", cfg.Store),
		)
		return NewFixedWindowLimiter(s, cfg.Max, window, logger), nil

	case config.AlgorithmTokenBucket:
		if cfg.Store == config.StoreRedis {
			logger.Warn("token_bucket keeps state in memory; the redis store setting is ignored")
		}
		logger.Info("token bucket rate limiter initialized",
			observability.Int("max", cfg.Max),
			observability.Duration("window", window),
			observability.Int("burst", cfg.Burst),
		)
		return NewTokenBucketLimiter(cfg.Max, window, cfg.Burst, logger), nil

	default:
		return nil, fmt.Errorf("unknown rate limit algorithm: %s", cfg.Algorithm)
	}
}

func newStore(cfg *config.RateLimitConfig, client redis.UniversalClient, logger observability.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory, "":
		return store.NewMemoryStore(), nil
	case config.StoreRedis:
		if client == nil {
			return nil, fmt.Errorf("rate limit store %q requires a redis client", cfg.Store)
		}
		return store.NewRedisStore(client, cfg.KeyPrefix, store.WithRedisLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown rate limit store: %s", cfg.Store)
	}
}
