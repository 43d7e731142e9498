package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/bifrost/internal/circuitbreaker"
	"github.com/vyrodovalexey/bifrost/internal/config"
)

func TestServiceVerifier_Request(t *testing.T) {
	t.Parallel()

	requests := make(chan *http.Request, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"active":true,"realm_access":{"roles":["asgard"]}}`))
	}))
	defer server.Close()

	v, err := NewServiceVerifier(server.URL + "/")
	require.NoError(t, err)

	result, err := v.Verify(context.Background(), "tok-1", "asgard tenant")
	require.NoError(t, err)
	assert.Equal(t, []string{"asgard"}, result.Roles)

	got := <-requests
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/verifyToken", got.URL.Path)
	assert.Equal(t, "asgard tenant", got.URL.Query().Get("tenant"))
	assert.Equal(t, "Bearer tok-1", got.Header.Get("Authorization"))
}

func TestServiceVerifier_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "active", status: http.StatusOK, body: `{"active":true}`},
		{name: "inactive body", status: http.StatusOK, body: `{"active":false}`, wantErr: ErrInactive},
		{name: "auth service rejects", status: http.StatusUnauthorized, body: "Invalid or expired token", wantErr: ErrInactive},
		{name: "forbidden", status: http.StatusForbidden, wantErr: ErrInactive},
		{name: "bad request", status: http.StatusBadRequest, body: "Missing tenant parameter", wantErr: ErrMalformed},
		{name: "garbage", status: http.StatusOK, body: "<html>", wantErr: ErrMalformed},
		{name: "missing active", status: http.StatusOK, body: `{}`, wantErr: ErrMalformed},
		{name: "server error", status: http.StatusInternalServerError, wantErr: ErrUnreachable},
		{name: "bad gateway", status: http.StatusBadGateway, wantErr: ErrUnreachable},
		{name: "throttled", status: http.StatusTooManyRequests, wantErr: ErrUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			v, err := NewServiceVerifier(server.URL)
			require.NoError(t, err)

			_, err = v.Verify(context.Background(), "tok", "t")
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestServiceVerifier_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	v, err := NewServiceVerifier(server.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = v.Verify(context.Background(), "tok", "t")
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestServiceVerifier_ConnectionRefused(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	v, err := NewServiceVerifier(url)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "tok", "t")
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestServiceVerifier_NoRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	v, err := NewServiceVerifier(server.URL)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "tok", "t")
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestServiceVerifier_BreakerOpens(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	breaker := circuitbreaker.New("verifier-test-open", 2, time.Minute, time.Hour,
		circuitbreaker.WithIsSuccessful(BreakerIsSuccessful))
	metrics := NewMetricsWithRegisterer("test", prometheus.NewRegistry())

	v, err := NewServiceVerifier(server.URL, WithBreaker(breaker), WithVerifierMetrics(metrics))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = v.Verify(context.Background(), "tok", "t")
		require.ErrorIs(t, err, ErrUnreachable)
	}

	_, err = v.Verify(context.Background(), "tok", "t")
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.True(t, circuitbreaker.IsOpen(err))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.verifyTotal.WithLabelValues("service", "unreachable")))
}

func TestServiceVerifier_RejectionsKeepBreakerClosed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	breaker := circuitbreaker.New("verifier-test-closed", 1, time.Minute, time.Hour,
		circuitbreaker.WithIsSuccessful(BreakerIsSuccessful))

	v, err := NewServiceVerifier(server.URL, WithBreaker(breaker))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = v.Verify(context.Background(), "tok", "t")
		assert.ErrorIs(t, err, ErrInactive)
	}
}

func TestNewServiceVerifier_InvalidURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "localhost:3001", "ftp://auth", "http://"} {
		_, err := NewServiceVerifier(raw)
		assert.Error(t, err, raw)
	}
}

func TestNewVerifier(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig().Identity
	v, err := NewVerifier(&cfg, "")
	require.NoError(t, err)
	assert.IsType(t, &ServiceVerifier{}, v)

	cfg.Mode = config.IdentityModeIntrospection
	cfg.IssuerURL = "http://keycloak:8080"
	cfg.ClientSecret = "from-file"
	v, err = NewVerifier(&cfg, "")
	require.NoError(t, err)
	iv, ok := v.(*IntrospectionVerifier)
	require.True(t, ok)
	assert.Equal(t, "from-file", iv.clientSecret)

	v, err = NewVerifier(&cfg, "resolved")
	require.NoError(t, err)
	assert.Equal(t, "resolved", v.(*IntrospectionVerifier).clientSecret)

	cfg.Mode = "ldap"
	_, err = NewVerifier(&cfg, "")
	assert.Error(t, err)

	_, err = NewVerifier(nil, "")
	assert.Error(t, err)
}
