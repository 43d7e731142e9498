package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestEnvProvider_GetSecret(t *testing.T) {
	t.Parallel()

	p := NewEnvProvider("", WithEnvLookup(lookupFrom(map[string]string{
		"BIFROST_SECRET_CLIENT_SECRET": "s3cr3t",
		"BIFROST_SECRET_REDIS":         `{"password":"pw","db":2}`,
	})))

	tests := []struct {
		name    string
		path    string
		key     string
		want    string
		wantErr error
	}{
		{name: "plain value", path: "client-secret", key: DefaultKey, want: "s3cr3t"},
		{name: "dots and dashes", path: "client.secret", key: DefaultKey, want: "s3cr3t"},
		{name: "json string field", path: "redis", key: "password", want: "pw"},
		{name: "json number field", path: "redis", key: "db", want: "2"},
		{name: "missing", path: "nope", wantErr: ErrSecretNotFound},
		{name: "empty path", path: "", wantErr: ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			secret, err := p.GetSecret(context.Background(), tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			got, ok := secret.GetString(tt.key)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnvProvider_CustomPrefix(t *testing.T) {
	t.Parallel()

	p := NewEnvProvider("APP_", WithEnvLookup(lookupFrom(map[string]string{"APP_TOKEN": "x"})))

	assert.Equal(t, ProviderTypeEnv, p.Type())
	secret, err := p.GetSecret(context.Background(), "token")
	require.NoError(t, err)
	v, _ := secret.GetString(DefaultKey)
	assert.Equal(t, "x", v)
	assert.NoError(t, p.Close())
}

func TestSecret_GetString_Nil(t *testing.T) {
	t.Parallel()

	var s *Secret
	_, ok := s.GetString("k")
	assert.False(t, ok)
}
