package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/bifrost/internal/observability"
)

func newVaultServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "test-token" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/secret/data/gateway/identity":
			_, _ = w.Write([]byte(`{
				"data": {
					"data": {"clientSecret": "from-vault", "port": 6379},
					"metadata": {"version": 3}
				}
			}`))
		case "/v1/secret/data/deleted":
			_, _ = w.Write([]byte(`{"data": {"data": null, "metadata": {"version": 2}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestVaultProvider_GetSecret(t *testing.T) {
	server := newVaultServer(t)

	p, err := NewVaultProvider(&VaultProviderConfig{
		Address: server.URL,
		Token:   "test-token",
		Timeout: 2 * time.Second,
	}, observability.NopLogger())
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, ProviderTypeVault, p.Type())

	secret, err := p.GetSecret(context.Background(), "gateway/identity")
	require.NoError(t, err)

	v, ok := secret.GetString("clientSecret")
	require.True(t, ok)
	assert.Equal(t, "from-vault", v)
	port, _ := secret.GetString("port")
	assert.Equal(t, "6379", port)
	assert.Equal(t, "3", secret.Version)
}

func TestVaultProvider_NotFound(t *testing.T) {
	server := newVaultServer(t)

	p, err := NewVaultProvider(&VaultProviderConfig{Address: server.URL, Token: "test-token"}, nil)
	require.NoError(t, err)

	_, err = p.GetSecret(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	_, err = p.GetSecret(context.Background(), "deleted")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	_, err = p.GetSecret(context.Background(), "/")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestVaultProvider_PermissionDenied(t *testing.T) {
	server := newVaultServer(t)

	p, err := NewVaultProvider(&VaultProviderConfig{Address: server.URL, Token: "wrong"}, nil)
	require.NoError(t, err)

	_, err = p.GetSecret(context.Background(), "gateway/identity")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSecretNotFound)
}

func TestNewVaultProvider_RequiresAddress(t *testing.T) {
	_, err := NewVaultProvider(&VaultProviderConfig{}, nil)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	_, err = NewVaultProvider(nil, nil)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}
