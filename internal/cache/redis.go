package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// metaSuffix names the companion key holding entry metadata.
const metaSuffix = ":meta"

// RedisStore keeps entries in Redis. The verification payload is written
// verbatim under <prefix><credential>, the key realm services read to
// obtain the caller's roles; tenant and fetch time live under the same key
// with a ":meta" suffix. With key hashing enabled the credential is
// replaced by its SHA-256, which hides it from Redis at the cost of that
// shared layout.
//
// Get and Put touch the payload and meta keys in one MGET and one
// MULTI/EXEC, so the store takes a single-node *redis.Client; the two
// keys would hash to different Redis Cluster slots.
type RedisStore struct {
	client    *redis.Client
	logger    observability.Logger
	keyPrefix string
	hashKeys  bool

	hits   int64
	misses int64
}

// RedisOption is a functional option for the Redis store.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.keyPrefix = prefix
	}
}

// WithHashKeys stores entries under the SHA-256 of the credential.
func WithHashKeys(enabled bool) RedisOption {
	return func(s *RedisStore) {
		s.hashKeys = enabled
	}
}

// redisMeta is the JSON document stored under the meta key.
type redisMeta struct {
	Tenant    string    `json:"tenant"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client *redis.Client, logger observability.Logger, opts ...RedisOption) *RedisStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &RedisStore{
		client: client,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolveKey applies key prefix and optional SHA-256 hashing.
func (s *RedisStore) resolveKey(credential string) string {
	if s.hashKeys {
		return s.keyPrefix + HashKey(credential)
	}
	return s.keyPrefix + credential
}

func (s *RedisStore) startSpan(ctx context.Context, name, credential string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key_fingerprint", Fingerprint(credential)),
		),
	)
}

func (s *RedisStore) fail(span trace.Span, op string, err error) {
	GetMetrics().errorsTotal.WithLabelValues("redis", op).Inc()
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, credential string) (*Entry, error) {
	ctx, span := s.startSpan(ctx, "cache.Get", credential)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues("redis", "get").Observe(time.Since(start).Seconds())
	}()

	key := s.resolveKey(credential)
	values, err := s.client.MGet(ctx, key, key+metaSuffix).Result()
	if err != nil {
		s.fail(span, "get", err)
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}

	result, ok := asBytes(values[0])
	if !ok {
		atomic.AddInt64(&s.misses, 1)
		GetMetrics().missesTotal.WithLabelValues("redis").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	entry := &Entry{
		Credential: credential,
		Result:     result,
	}

	// Entries written by another producer may lack metadata.
	if raw, ok := asBytes(values[1]); ok {
		var meta redisMeta
		if err := json.Unmarshal(raw, &meta); err == nil {
			entry.Tenant = meta.Tenant
			entry.FetchedAt = meta.FetchedAt
		} else {
			s.logger.Warn("ignoring undecodable cache metadata",
				observability.String("credential", Fingerprint(credential)),
				observability.Error(err))
		}
	}

	atomic.AddInt64(&s.hits, 1)
	GetMetrics().hitsTotal.WithLabelValues("redis").Inc()
	span.SetAttributes(attribute.Bool("cache.hit", true))

	return entry, nil
}

func asBytes(v interface{}) ([]byte, bool) {
	switch val := v.(type) {
	case string:
		return []byte(val), true
	case []byte:
		return val, true
	default:
		return nil, false
	}
}

// Put implements Store. Payload and metadata are written in one MULTI/EXEC
// so readers never see one without the other.
func (s *RedisStore) Put(ctx context.Context, entry *Entry, ttl time.Duration) error {
	if err := validatePut(entry, ttl); err != nil {
		return err
	}

	ctx, span := s.startSpan(ctx, "cache.Put", entry.Credential)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues("redis", "put").Observe(time.Since(start).Seconds())
	}()

	meta, err := json.Marshal(redisMeta{Tenant: entry.Tenant, FetchedAt: entry.FetchedAt.UTC()})
	if err != nil {
		s.fail(span, "put", err)
		return fmt.Errorf("failed to encode cache metadata: %w", err)
	}

	key := s.resolveKey(entry.Credential)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, entry.Result, ttl)
		pipe.Set(ctx, key+metaSuffix, meta, ttl)
		return nil
	})
	if err != nil {
		s.fail(span, "put", err)
		return fmt.Errorf("redis put failed: %w", err)
	}

	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, credential string) error {
	ctx, span := s.startSpan(ctx, "cache.Delete", credential)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues("redis", "delete").Observe(time.Since(start).Seconds())
	}()

	key := s.resolveKey(credential)
	if err := s.client.Del(ctx, key, key+metaSuffix).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.fail(span, "delete", err)
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Stats implements StatsProvider. Size is not tracked for Redis.
func (s *RedisStore) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&s.hits),
		Misses: atomic.LoadInt64(&s.misses),
	}
}

// Close implements Store. The shared client is left open.
func (s *RedisStore) Close() error {
	return nil
}
