package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/bifrost/internal/cache"
	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// DefaultCacheTTL is used when no positive TTL is configured.
const DefaultCacheTTL = 5 * time.Minute

// VerificationCache maps credentials to the results of successful
// verifications. An entry lives for the shortest of the configured TTL,
// the result's "exp" and the credential's own JWT "exp", so a credential
// never outlives its validity at the gateway.
type VerificationCache struct {
	store  cache.Store
	ttl    time.Duration
	now    func() time.Time
	logger observability.Logger
}

// CacheOption configures a VerificationCache.
type CacheOption func(*VerificationCache)

// WithCacheClock replaces time.Now.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *VerificationCache) {
		c.now = now
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger observability.Logger) CacheOption {
	return func(c *VerificationCache) {
		c.logger = logger
	}
}

// NewVerificationCache creates a cache over store.
func NewVerificationCache(store cache.Store, ttl time.Duration, opts ...CacheOption) *VerificationCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &VerificationCache{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached result for credential. Store failures are logged
// and reported as a miss.
func (c *VerificationCache) Get(ctx context.Context, credential string) (*VerificationResult, bool) {
	entry, err := c.store.Get(ctx, credential)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.WithContext(ctx).Warn("verification cache read failed",
				observability.String("credential", cache.Fingerprint(credential)),
				observability.Error(err),
			)
		}
		return nil, false
	}

	result, err := decodeResult(entry.Result)
	if err != nil || !result.Active {
		c.logger.WithContext(ctx).Warn("dropping unreadable verification cache entry",
			observability.String("credential", cache.Fingerprint(credential)),
		)
		_ = c.store.Delete(ctx, credential)
		return nil, false
	}
	return result, true
}

// Put caches result for credential, replacing any prior entry. A result
// that is already expired is not stored.
func (c *VerificationCache) Put(ctx context.Context, credential, tenant string, result *VerificationResult) error {
	now := c.now()
	ttl := c.TTLFor(credential, result, now)
	if ttl <= 0 {
		c.logger.WithContext(ctx).Debug("verification result expired, not cached",
			observability.String("credential", cache.Fingerprint(credential)),
		)
		return nil
	}

	return c.store.Put(ctx, &cache.Entry{
		Credential: credential,
		Tenant:     tenant,
		Result:     result.Raw,
		FetchedAt:  now,
	}, ttl)
}

// TTLFor computes how long a result may be cached at now.
func (c *VerificationCache) TTLFor(credential string, result *VerificationResult, now time.Time) time.Duration {
	ttl := c.ttl
	if result != nil && !result.ExpiresAt.IsZero() {
		ttl = minDuration(ttl, result.ExpiresAt.Sub(now))
	}
	if exp, ok := credentialExpiry(credential); ok {
		ttl = minDuration(ttl, exp.Sub(now))
	}
	return ttl
}

// credentialExpiry reads the "exp" claim of a JWT credential without
// verifying it. The value only shortens cache lifetimes, it never grants
// access.
func credentialExpiry(credential string) (time.Time, bool) {
	token := accessToken(credential)
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	parsed, err := jwt.ParseInsecure([]byte(token))
	if err != nil {
		return time.Time{}, false
	}
	exp := parsed.Expiration()
	return exp, !exp.IsZero()
}

func minDuration(a, b time.Duration) time.Duration {
	if b < a {
		return b
	}
	return a
}
