package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/bifrost/internal/config"
)

func TestNew(t *testing.T) {
	t.Parallel()

	p, err := New(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeEnv, p.Type())

	p, err = New(&config.SecretsConfig{Provider: "env", EnvPrefix: "X_"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeEnv, p.Type())

	_, err = New(&config.SecretsConfig{Provider: "kubernetes"}, nil)
	assert.ErrorIs(t, err, ErrInvalidProviderType)

	_, err = New(&config.SecretsConfig{Provider: "vault"}, nil)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestNew_Vault(t *testing.T) {
	server := newVaultServer(t)

	cfg := config.DefaultConfig().Secrets
	cfg.Provider = config.SecretsProviderVault
	cfg.Vault.Address = server.URL
	cfg.Vault.Token = "test-token"

	p, err := New(&cfg, nil)
	require.NoError(t, err)

	value, err := Resolve(context.Background(), p, "vault:gateway/identity#clientSecret")
	require.NoError(t, err)
	assert.Equal(t, "from-vault", value)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	p := NewEnvProvider("", WithEnvLookup(lookupFrom(map[string]string{
		"BIFROST_SECRET_CLIENT_SECRET": "plain",
		"BIFROST_SECRET_REDIS":         `{"password":"pw"}`,
	})))

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr error
	}{
		{name: "empty", ref: "", want: ""},
		{name: "bare path", ref: "client-secret", want: "plain"},
		{name: "env scheme", ref: "env:client-secret", want: "plain"},
		{name: "with key", ref: "redis#password", want: "pw"},
		{name: "empty key falls back", ref: "client-secret#", want: "plain"},
		{name: "missing key", ref: "redis#user", wantErr: ErrKeyNotFound},
		{name: "wrong scheme", ref: "vault:redis#password", wantErr: ErrProviderMismatch},
		{name: "missing secret", ref: "nothing", wantErr: ErrSecretNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Resolve(context.Background(), p, tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_NoProvider(t *testing.T) {
	t.Parallel()

	_, err := Resolve(context.Background(), nil, "x")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}
