package auth

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/bifrost/internal/cache"
	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// Decision sources.
const (
	SourceCache     = "cache"
	SourceAuthority = "authority"
)

// Decision describes a successful authorization.
type Decision struct {
	Result *VerificationResult
	// Source is SourceCache or SourceAuthority.
	Source string
}

// Gate authorizes requests on authenticated routes.
type Gate struct {
	cache    *VerificationCache
	verifier Verifier
	group    singleflight.Group
	logger   observability.Logger
	metrics  *Metrics
	// verifyTimeout bounds a shared verification once its initiator has
	// gone away.
	verifyTimeout time.Duration
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateLogger sets the logger.
func WithGateLogger(logger observability.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithGateMetrics sets the metrics.
func WithGateMetrics(metrics *Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = metrics
	}
}

// WithSharedVerifyTimeout bounds verifications shared between callers.
func WithSharedVerifyTimeout(timeout time.Duration) GateOption {
	return func(g *Gate) {
		if timeout > 0 {
			g.verifyTimeout = timeout
		}
	}
}

// NewGate creates a gate.
func NewGate(verificationCache *VerificationCache, verifier Verifier, opts ...GateOption) *Gate {
	g := &Gate{
		cache:         verificationCache,
		verifier:      verifier,
		logger:        observability.NopLogger(),
		verifyTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = NewMetricsWithRegisterer("", prometheus.NewRegistry())
	}
	return g
}

// Authorize decides whether credential may access tenant's resources.
//
// Missing inputs fail with KindBadRequest before any I/O. A cache hit
// succeeds without consulting the authority. On a miss the authority is
// asked once; active results are cached.
func (g *Gate) Authorize(ctx context.Context, credential, tenant string) (*Decision, error) {
	if credential == "" {
		g.metrics.RecordDecision(KindBadRequest.String(), "request")
		return nil, NewAuthError(KindBadRequest, MessageMissingCredential, ErrMissingCredential)
	}
	if tenant == "" {
		g.metrics.RecordDecision(KindBadRequest.String(), "request")
		return nil, NewAuthError(KindBadRequest, MessageMissingTenant, ErrMissingTenant)
	}

	ctx, span := tracer.Start(ctx, "auth.authorize")
	defer span.End()
	span.SetAttributes(
		attribute.String("auth.tenant", tenant),
		attribute.String("auth.credential_fingerprint", cache.Fingerprint(credential)),
	)

	if result, ok := g.cache.Get(ctx, credential); ok {
		span.SetAttributes(attribute.String("auth.source", SourceCache))
		g.metrics.RecordDecision("allowed", SourceCache)
		return &Decision{Result: result, Source: SourceCache}, nil
	}

	result, err := g.verify(ctx, credential, tenant)
	if err != nil {
		authErr := classify(err)
		span.SetAttributes(attribute.String("auth.outcome", authErr.Kind.String()))
		span.SetStatus(codes.Error, authErr.Kind.String())
		g.metrics.RecordDecision(authErr.Kind.String(), SourceAuthority)
		return nil, authErr
	}

	span.SetAttributes(attribute.String("auth.source", SourceAuthority))
	g.metrics.RecordDecision("allowed", SourceAuthority)
	return &Decision{Result: result, Source: SourceAuthority}, nil
}

// verify collapses concurrent misses for the same credential and tenant
// into one call. The call runs detached from the caller's cancellation so
// one abandoned request does not fail the others waiting on it.
func (g *Gate) verify(ctx context.Context, credential, tenant string) (*VerificationResult, error) {
	key := tenant + "\x00" + credential

	ch := g.group.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.verifyTimeout)
		defer cancel()

		result, err := g.verifier.Verify(flightCtx, credential, tenant)
		if err != nil {
			return nil, err
		}
		if !result.Active {
			return nil, inactive(0, nil)
		}

		if err := g.cache.Put(flightCtx, credential, tenant, result); err != nil {
			g.metrics.RecordCacheWriteError()
			g.logger.WithContext(ctx).Warn("failed to cache verification result",
				observability.String("credential", cache.Fingerprint(credential)),
				observability.Error(err),
			)
		}
		return result, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			g.metrics.RecordSharedFlight()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*VerificationResult), nil
	case <-ctx.Done():
		return nil, unreachable(0, ctx.Err())
	}
}
