// Package cache stores verification results of active credentials so the
// identity authority is consulted at most once per credential lifetime.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/bifrost/internal/config"
	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the credential has no live entry.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidTTL indicates that Put was called with a non-positive TTL.
	ErrInvalidTTL = errors.New("cache ttl must be positive")

	// ErrInvalidEntry indicates that Put was called without a credential.
	ErrInvalidEntry = errors.New("cache entry requires a credential")

	// ErrInvalidConfig indicates that the cache configuration is invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")
)

// Entry is a cached verification. It exists only for credentials the
// authority reported active at FetchedAt.
type Entry struct {
	Credential string
	Tenant     string

	// Result is the authority's payload, stored verbatim.
	Result []byte

	FetchedAt time.Time
}

// Store is the pluggable backend of the verification cache.
type Store interface {
	// Get returns the live entry for credential or ErrCacheMiss.
	Get(ctx context.Context, credential string) (*Entry, error)

	// Put stores entry for ttl, replacing any prior entry for the same
	// credential. ttl must be positive.
	Put(ctx context.Context, entry *Entry, ttl time.Duration) error

	// Delete removes the entry for credential, if any.
	Delete(ctx context.Context, credential string) error

	// Close releases resources held by the store.
	Close() error
}

// StatsProvider is implemented by stores that track hit statistics.
type StatsProvider interface {
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int64
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// New creates the store selected by cfg. client is required for the redis
// type and is not owned by the store.
func New(cfg *config.CacheConfig, client *redis.Client, logger observability.Logger) (Store, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	switch cfg.Type {
	case config.StoreMemory, "":
		return NewMemoryStore(cfg.MaxEntries, logger), nil
	case config.StoreRedis:
		if client == nil {
			return nil, fmt.Errorf("%w: redis cache requires a redis client", ErrInvalidConfig)
		}
		return NewRedisStore(client, logger,
			WithKeyPrefix(cfg.KeyPrefix),
			WithHashKeys(cfg.HashKeys),
		), nil
	default:
		return nil, fmt.Errorf("%w: unknown cache type %q", ErrInvalidConfig, cfg.Type)
	}
}

func validatePut(entry *Entry, ttl time.Duration) error {
	if entry == nil || entry.Credential == "" {
		return ErrInvalidEntry
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
