package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/bifrost/internal/cache"
	"github.com/vyrodovalexey/bifrost/internal/circuitbreaker"
	"github.com/vyrodovalexey/bifrost/internal/observability"
)

var tracer = otel.Tracer("bifrost/auth")

// maxResponseBytes bounds how much of an authority response is read.
const maxResponseBytes = 1 << 20

// Verifier asks the identity authority whether a credential is active for
// a tenant. Each call makes exactly one outbound request bounded by the
// verifier's timeout and never retries.
type Verifier interface {
	Verify(ctx context.Context, credential, tenant string) (*VerificationResult, error)
}

// VerifierOption configures the HTTP verifiers.
type VerifierOption func(*httpVerifier)

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) VerifierOption {
	return func(v *httpVerifier) {
		if timeout > 0 {
			v.timeout = timeout
		}
	}
}

// WithBreaker guards calls with a circuit breaker. An open circuit is
// reported as ErrUnreachable.
func WithBreaker(b *circuitbreaker.Breaker) VerifierOption {
	return func(v *httpVerifier) {
		v.breaker = b
	}
}

// WithVerifierLogger sets the logger.
func WithVerifierLogger(logger observability.Logger) VerifierOption {
	return func(v *httpVerifier) {
		v.logger = logger
	}
}

// WithVerifierMetrics sets the metrics.
func WithVerifierMetrics(metrics *Metrics) VerifierOption {
	return func(v *httpVerifier) {
		v.metrics = metrics
	}
}

// httpVerifier holds what both verifier modes share: the client, the
// deadline, the breaker and the response classification.
type httpVerifier struct {
	mode    string
	client  *http.Client
	timeout time.Duration
	breaker *circuitbreaker.Breaker
	logger  observability.Logger
	metrics *Metrics
}

func newHTTPVerifier(mode string, opts []VerifierOption) httpVerifier {
	v := httpVerifier{
		mode:    mode,
		client:  &http.Client{},
		timeout: 5 * time.Second,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(&v)
	}
	if v.metrics == nil {
		v.metrics = NewMetricsWithRegisterer("", prometheus.NewRegistry())
	}
	v.logger = v.logger.With(observability.String("component", "verifier"))
	return v
}

// BreakerIsSuccessful reports which verification errors leave the breaker
// untouched. Only an unreachable authority counts as a failure; rejected
// credentials say nothing about its health.
func BreakerIsSuccessful(err error) bool {
	return err == nil || !errors.Is(err, ErrUnreachable)
}

// do runs one verification request built by newRequest.
func (v *httpVerifier) do(
	ctx context.Context,
	credential, tenant string,
	newRequest func(ctx context.Context) (*http.Request, error),
) (*VerificationResult, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "auth.verify",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("auth.mode", v.mode),
			attribute.String("auth.tenant", tenant),
			attribute.String("auth.credential_fingerprint", cache.Fingerprint(credential)),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	result, err := circuitbreaker.Run(v.breaker, func() (*VerificationResult, error) {
		req, err := newRequest(ctx)
		if err != nil {
			return nil, malformed(0, err)
		}
		observability.InjectTraceContext(ctx, req)
		return v.roundTrip(req)
	})
	if circuitbreaker.IsOpen(err) {
		err = unreachable(0, err)
	}

	outcome := outcomeOf(err)
	v.metrics.RecordVerify(v.mode, outcome, time.Since(start))
	span.SetAttributes(attribute.String("auth.outcome", outcome))

	if err != nil {
		if outcome == "unreachable" {
			span.RecordError(err)
			span.SetStatus(codes.Error, "identity authority unreachable")
			v.logger.WithContext(ctx).Warn("identity authority unreachable",
				observability.String("tenant", tenant),
				observability.String("credential", cache.Fingerprint(credential)),
				observability.Error(err),
			)
		} else {
			v.logger.WithContext(ctx).Debug("credential rejected",
				observability.String("tenant", tenant),
				observability.String("credential", cache.Fingerprint(credential)),
				observability.String("outcome", outcome),
			)
		}
		return nil, err
	}

	return result, nil
}

func (v *httpVerifier) roundTrip(req *http.Request) (*VerificationResult, error) {
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, unreachable(0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, unreachable(resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		result, err := ParseResult(body)
		if err != nil {
			var verr *VerifyError
			if errors.As(err, &verr) {
				verr.StatusCode = resp.StatusCode
			}
			return nil, err
		}
		return result, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, inactive(resp.StatusCode, nil)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= http.StatusInternalServerError:
		return nil, unreachable(resp.StatusCode, nil)
	default:
		return nil, malformed(resp.StatusCode, nil)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "active"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrInactive):
		return "inactive"
	default:
		return "malformed"
	}
}

// ServiceVerifier calls the auth service:
//
//	GET {authURL}/verifyToken?tenant={tenant}
//	Authorization: Bearer {credential}
type ServiceVerifier struct {
	httpVerifier
	endpoint *url.URL
}

// NewServiceVerifier creates a verifier for the auth service at authURL.
func NewServiceVerifier(authURL string, opts ...VerifierOption) (*ServiceVerifier, error) {
	endpoint, err := parseBaseURL(authURL)
	if err != nil {
		return nil, err
	}
	endpoint.Path = strings.TrimSuffix(endpoint.Path, "/") + "/verifyToken"

	return &ServiceVerifier{
		httpVerifier: newHTTPVerifier("service", opts),
		endpoint:     endpoint,
	}, nil
}

// Verify implements Verifier.
func (v *ServiceVerifier) Verify(ctx context.Context, credential, tenant string) (*VerificationResult, error) {
	return v.do(ctx, credential, tenant, func(ctx context.Context) (*http.Request, error) {
		u := *v.endpoint
		u.RawQuery = url.Values{"tenant": {tenant}}.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+credential)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid identity URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid identity URL %q: must be an absolute http(s) URL", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
