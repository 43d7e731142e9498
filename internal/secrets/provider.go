// Package secrets resolves secret references used by the gateway
// configuration, such as the introspection client secret and the Redis
// password. Secrets come from environment variables or a HashiCorp Vault
// KV v2 mount.
package secrets

import (
	"context"
	"errors"
	"fmt"
)

// ProviderType represents the type of secrets provider.
type ProviderType string

const (
	// ProviderTypeEnv uses environment variables as the backend.
	ProviderTypeEnv ProviderType = "env"
	// ProviderTypeVault uses HashiCorp Vault as the backend.
	ProviderTypeVault ProviderType = "vault"
)

// Common errors for secrets providers.
var (
	// ErrSecretNotFound is returned when a secret is not found.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrKeyNotFound is returned when a secret exists but lacks the requested key.
	ErrKeyNotFound = errors.New("secret key not found")
	// ErrProviderNotConfigured is returned when the provider is not properly configured.
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrInvalidPath is returned when the secret path is invalid.
	ErrInvalidPath = errors.New("invalid secret path")
	// ErrInvalidProviderType is returned when an unknown provider type is specified.
	ErrInvalidProviderType = errors.New("invalid provider type")
	// ErrProviderMismatch is returned when a reference names a provider other
	// than the configured one.
	ErrProviderMismatch = errors.New("secret reference names a different provider")
)

// DefaultKey is the key under which single-valued secrets are stored.
const DefaultKey = "value"

// Secret represents a secret with key-value data.
type Secret struct {
	// Name is the path the secret was read from.
	Name string
	// Data contains the secret key-value pairs.
	Data map[string][]byte
	// Version is the version of the secret, when the provider tracks one.
	Version string
}

// GetString returns a string value from the secret data.
func (s *Secret) GetString(key string) (string, bool) {
	if s == nil || s.Data == nil {
		return "", false
	}
	v, ok := s.Data[key]
	if !ok {
		return "", false
	}
	return string(v), true
}

// Provider is the interface for secrets providers.
type Provider interface {
	// Type returns the provider type.
	Type() ProviderType

	// GetSecret retrieves a secret by path.
	// - env: "client-secret" maps to {PREFIX}CLIENT_SECRET
	// - vault: "gateway/identity" maps to {mount}/data/gateway/identity
	GetSecret(ctx context.Context, path string) (*Secret, error)

	// Close releases provider resources.
	Close() error
}

// ValidateProviderType validates that the given string is a valid provider type.
func ValidateProviderType(providerType string) (ProviderType, error) {
	switch ProviderType(providerType) {
	case ProviderTypeEnv, ProviderTypeVault:
		return ProviderType(providerType), nil
	default:
		return "", fmt.Errorf("%w: %s, must be one of: env, vault", ErrInvalidProviderType, providerType)
	}
}
