package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type introspectCall struct {
	path         string
	token        string
	clientID     string
	clientSecret string
	contentType  string
}

func newIntrospectionServer(t *testing.T, calls chan<- introspectCall) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		calls <- introspectCall{
			path:         r.URL.Path,
			token:        r.PostForm.Get("token"),
			clientID:     r.PostForm.Get("client_id"),
			clientSecret: r.PostForm.Get("client_secret"),
			contentType:  r.Header.Get("Content-Type"),
		}

		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("token") == "revoked" {
			_, _ = w.Write([]byte(`{"active":false}`))
			return
		}
		_, _ = w.Write([]byte(`{"active":true,"realm_access":{"roles":["midgard"]}}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestIntrospectionVerifier_Verify(t *testing.T) {
	t.Parallel()

	calls := make(chan introspectCall, 1)
	server := newIntrospectionServer(t, calls)

	v, err := NewIntrospectionVerifier(server.URL, "bifrost", "configured")
	require.NoError(t, err)

	result, err := v.Verify(context.Background(), "tok", "midgard")
	require.NoError(t, err)
	assert.Contains(t, result.Roles, "midgard")

	call := <-calls
	assert.Equal(t, "/realms/midgard/protocol/openid-connect/token/introspect", call.path)
	assert.Equal(t, "tok", call.token)
	assert.Equal(t, "bifrost", call.clientID)
	assert.Equal(t, "configured", call.clientSecret)
	assert.Equal(t, "application/x-www-form-urlencoded", call.contentType)
}

func TestIntrospectionVerifier_CompositeCredential(t *testing.T) {
	t.Parallel()

	calls := make(chan introspectCall, 1)
	server := newIntrospectionServer(t, calls)

	v, err := NewIntrospectionVerifier(server.URL, "bifrost", "configured")
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "client-secret|tok", "asgard")
	require.NoError(t, err)

	call := <-calls
	assert.Equal(t, "tok", call.token)
	assert.Equal(t, "client-secret", call.clientSecret)
}

func TestIntrospectionVerifier_Inactive(t *testing.T) {
	t.Parallel()

	calls := make(chan introspectCall, 1)
	server := newIntrospectionServer(t, calls)

	v, err := NewIntrospectionVerifier(server.URL, "bifrost", "")
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "revoked", "asgard")
	assert.ErrorIs(t, err, ErrInactive)
	assert.Empty(t, (<-calls).clientSecret)
}

func TestIntrospectionVerifier_EmptyToken(t *testing.T) {
	t.Parallel()

	v, err := NewIntrospectionVerifier("http://127.0.0.1:1", "bifrost", "")
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "secret|", "asgard")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewIntrospectionVerifier_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewIntrospectionVerifier("http://kc", "", "")
	assert.Error(t, err)

	_, err = NewIntrospectionVerifier("kc", "bifrost", "")
	assert.Error(t, err)
}

func TestAccessToken(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tok", accessToken("tok"))
	assert.Equal(t, "tok", accessToken("secret|tok"))
	assert.Equal(t, "", accessToken("secret|"))
}
