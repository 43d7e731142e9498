package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/bifrost/internal/circuitbreaker"
	"github.com/vyrodovalexey/bifrost/internal/config"
	"github.com/vyrodovalexey/bifrost/internal/router"
)

type seenRequest struct {
	method      string
	path        string
	query       string
	host        string
	body        string
	contentType string
	forwarded   string
	auth        string
}

func newRule(t *testing.T, name, prefix, target string, timeout time.Duration) *router.RouteRule {
	t.Helper()

	u, err := url.Parse(target)
	require.NoError(t, err)

	table, err := router.New([]router.RouteRule{{
		Name:    name,
		Prefix:  prefix,
		Target:  u,
		Timeout: timeout,
	}})
	require.NoError(t, err)
	return table.Rules()[0]
}

func TestForward_RelaysRequestWithStrippedPrefix(t *testing.T) {
	t.Parallel()

	seen := make(chan seenRequest, 1)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen <- seenRequest{
			method:      r.Method,
			path:        r.URL.Path,
			query:       r.URL.RawQuery,
			host:        r.Host,
			body:        string(body),
			contentType: r.Header.Get("Content-Type"),
			forwarded:   r.Header.Get("X-Forwarded-For"),
			auth:        r.Header.Get("Authorization"),
		}
		w.Header().Set("X-Realm", "asgard")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"created":true}`)
	}))
	t.Cleanup(backend.Close)

	rule := newRule(t, "asgard", "/api/asgard", backend.URL, time.Second)
	fwd := NewForwarder()

	req := httptest.NewRequest(http.MethodPost, "/api/asgard/warriors?tenant=odin",
		strings.NewReader(`{"name":"thor"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	req.RemoteAddr = "192.0.2.7:5555"
	rec := httptest.NewRecorder()

	fwd.Forward(rec, req, rule)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "asgard", rec.Header().Get("X-Realm"))
	assert.JSONEq(t, `{"created":true}`, rec.Body.String())

	got := <-seen
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/warriors", got.path)
	assert.Equal(t, "tenant=odin", got.query)
	assert.Equal(t, strings.TrimPrefix(backend.URL, "http://"), got.host)
	assert.Equal(t, `{"name":"thor"}`, got.body)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, "10.0.0.1, 192.0.2.7", got.forwarded)
	assert.Equal(t, "Bearer abc", got.auth)
}

func TestForward_PrefixOnlyPathBecomesRoot(t *testing.T) {
	t.Parallel()

	seen := make(chan string, 1)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(backend.Close)

	rule := newRule(t, "midgard", "/api/midgard", backend.URL, time.Second)
	rec := httptest.NewRecorder()

	NewForwarder().Forward(rec, httptest.NewRequest(http.MethodGet, "/api/midgard", nil), rule)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "/", <-seen)
}

func TestForward_RelaysBackendErrorsVerbatim(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "no such warrior")
	}))
	t.Cleanup(backend.Close)

	rule := newRule(t, "jotunheim", "/api/jotunheim", backend.URL, time.Second)
	rec := httptest.NewRecorder()

	NewForwarder().Forward(rec, httptest.NewRequest(http.MethodGet, "/api/jotunheim/x", nil), rule)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no such warrior", rec.Body.String())
}

func TestForward_BackendUnreachable(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.NotFoundHandler())
	target := backend.URL
	backend.Close()

	rule := newRule(t, "dead", "/api/dead", target, time.Second)
	rec := httptest.NewRecorder()

	NewForwarder().Forward(rec, httptest.NewRequest(http.MethodGet, "/api/dead/x", nil), rule)

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusText(http.StatusBadGateway), body["error"])
}

func TestForward_BackendTimeout(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(backend.Close)

	rule := newRule(t, "slow", "/api/slow", backend.URL, 50*time.Millisecond)
	rec := httptest.NewRecorder()

	NewForwarder().Forward(rec, httptest.NewRequest(http.MethodGet, "/api/slow/x", nil), rule)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestForward_CustomErrorHandler(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.NotFoundHandler())
	target := backend.URL
	backend.Close()

	var got *ProxyError
	fwd := NewForwarder(WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err *ProxyError) {
		got = err
		w.WriteHeader(err.Status())
	}))

	rule := newRule(t, "dead", "/api/dead", target, time.Second)
	rec := httptest.NewRecorder()
	fwd.Forward(rec, httptest.NewRequest(http.MethodGet, "/api/dead", nil), rule)

	require.NotNil(t, got)
	assert.Equal(t, "dead", got.Route)
	assert.Equal(t, "unavailable", got.Kind())
	assert.ErrorIs(t, got, ErrUpstreamUnavailable)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestForward_BreakerOpensOnServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(backend.Close)

	breakers := circuitbreaker.NewRegistry(&config.CircuitBreakerConfig{
		Enabled:   true,
		Threshold: 2,
		Interval:  config.Duration(time.Minute),
		Timeout:   config.Duration(time.Minute),
	}, nil)
	fwd := NewForwarder(WithBreakers(breakers))
	rule := newRule(t, "flaky", "/api/flaky", backend.URL, time.Second)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		fwd.Forward(rec, httptest.NewRequest(http.MethodGet, "/api/flaky", nil), rule)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, "5xx answers are relayed")
	}

	rec := httptest.NewRecorder()
	fwd.Forward(rec, httptest.NewRequest(http.MethodGet, "/api/flaky", nil), rule)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, int32(2), hits.Load(), "open breaker short-circuits the backend")
}

func TestForward_OversizedBodyLeavesBreakerClosed(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(backend.Close)

	breakers := circuitbreaker.NewRegistry(&config.CircuitBreakerConfig{
		Enabled:   true,
		Threshold: 1,
		Interval:  config.Duration(time.Minute),
		Timeout:   config.Duration(time.Minute),
	}, nil)
	var got *ProxyError
	fwd := NewForwarder(
		WithBreakers(breakers),
		WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err *ProxyError) {
			got = err
			w.WriteHeader(err.Status())
		}),
	)
	rule := newRule(t, "bigbody", "/api/bigbody", backend.URL, 5*time.Second)

	// No declared length, so the limit trips while the body is relayed.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/bigbody", io.MultiReader(strings.NewReader(strings.Repeat("x", 4096))))
	require.Equal(t, int64(-1), req.ContentLength)
	req.Body = http.MaxBytesReader(rec, req.Body, 10)
	fwd.Forward(rec, req, rule)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.NotNil(t, got)
	assert.ErrorIs(t, got, ErrRequestTooLarge)
	assert.Equal(t, "too_large", got.Kind())

	rec = httptest.NewRecorder()
	fwd.Forward(rec, httptest.NewRequest(http.MethodGet, "/api/bigbody", nil), rule)
	assert.Equal(t, http.StatusOK, rec.Code, "an oversized client body is not a backend failure")
}

func TestProxyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cause  error
		status int
		kind   string
	}{
		{name: "circuit open", cause: ErrCircuitOpen, status: http.StatusServiceUnavailable, kind: "circuit_open"},
		{name: "timeout", cause: ErrUpstreamTimeout, status: http.StatusGatewayTimeout, kind: "timeout"},
		{name: "client gone", cause: ErrClientGone, status: http.StatusBadGateway, kind: "client_canceled"},
		{name: "too large", cause: ErrRequestTooLarge, status: http.StatusRequestEntityTooLarge, kind: "too_large"},
		{name: "unavailable", cause: ErrUpstreamUnavailable, status: http.StatusBadGateway, kind: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := NewProxyError("forward", "asgard", "http://realm", tt.cause)
			assert.Equal(t, tt.status, err.Status())
			assert.Equal(t, tt.kind, err.Kind())
			assert.True(t, IsProxyError(err))
			assert.Contains(t, err.Error(), "route=asgard")
		})
	}
}
