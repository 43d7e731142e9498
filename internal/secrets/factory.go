package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/vyrodovalexey/bifrost/internal/config"
	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// New creates the provider selected by the configuration.
func New(cfg *config.SecretsConfig, logger observability.Logger) (Provider, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg == nil {
		return NewEnvProvider("", WithEnvLogger(logger)), nil
	}

	providerType, err := ValidateProviderType(cfg.Provider)
	if err != nil {
		return nil, err
	}

	switch providerType {
	case ProviderTypeVault:
		return NewVaultProvider(&VaultProviderConfig{
			Address:   cfg.Vault.Address,
			Token:     cfg.Vault.Token,
			Namespace: cfg.Vault.Namespace,
			Mount:     cfg.Vault.Mount,
			Timeout:   cfg.Vault.Timeout.Duration(),
		}, logger)
	default:
		return NewEnvProvider(cfg.EnvPrefix, WithEnvLogger(logger)), nil
	}
}

// Resolve returns the value named by a secret reference.
//
// Reference forms:
//
//	client-secret             key "value" of secret "client-secret"
//	gateway/identity#secret   key "secret" of secret "gateway/identity"
//	vault:gateway/identity#k  same, and asserts the provider is vault
//	env:REDIS_PASSWORD        same, and asserts the provider is env
//
// An empty reference resolves to the empty string.
func Resolve(ctx context.Context, provider Provider, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	if provider == nil {
		return "", ErrProviderNotConfigured
	}

	if scheme, rest, ok := strings.Cut(ref, ":"); ok {
		if _, err := ValidateProviderType(scheme); err == nil {
			if ProviderType(scheme) != provider.Type() {
				return "", fmt.Errorf("%w: %s (configured %s)", ErrProviderMismatch, scheme, provider.Type())
			}
			ref = rest
		}
	}

	path, key, found := strings.Cut(ref, "#")
	if !found || key == "" {
		key = DefaultKey
	}

	secret, err := provider.GetSecret(ctx, path)
	if err != nil {
		return "", err
	}

	value, ok := secret.GetString(key)
	if !ok {
		return "", fmt.Errorf("%w: %s#%s", ErrKeyNotFound, path, key)
	}
	return value, nil
}
