package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// DefaultVaultMount is the KV v2 mount used when none is configured.
const DefaultVaultMount = "secret"

// VaultProviderConfig holds configuration for the Vault secrets provider.
type VaultProviderConfig struct {
	Address   string
	Token     string
	Namespace string
	// Mount is the KV v2 mount path. Default: "secret".
	Mount   string
	Timeout time.Duration
}

// VaultProvider reads secrets from a Vault KV v2 mount using token
// authentication.
type VaultProvider struct {
	client *vaultapi.Client
	mount  string
	logger observability.Logger
}

// NewVaultProvider creates a new Vault secrets provider.
func NewVaultProvider(cfg *VaultProviderConfig, logger observability.Logger) (*VaultProvider, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("%w: vault address is required", ErrProviderNotConfigured)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	apiConfig := vaultapi.DefaultConfig()
	if apiConfig.Error != nil {
		return nil, fmt.Errorf("failed to read vault environment: %w", apiConfig.Error)
	}
	apiConfig.Address = cfg.Address
	if cfg.Timeout > 0 {
		apiConfig.Timeout = cfg.Timeout
	}
	// One attempt per read; callers decide what a failure means.
	apiConfig.MaxRetries = 0

	client, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mount := strings.Trim(cfg.Mount, "/")
	if mount == "" {
		mount = DefaultVaultMount
	}

	return &VaultProvider{
		client: client,
		mount:  mount,
		logger: logger.With(observability.String("component", "vault")),
	}, nil
}

// Type returns the provider type.
func (p *VaultProvider) Type() ProviderType {
	return ProviderTypeVault
}

// GetSecret reads {mount}/data/{path} and unwraps the KV v2 envelope.
func (p *VaultProvider) GetSecret(ctx context.Context, path string) (*Secret, error) {
	start := time.Now()
	secret, err := p.getSecret(ctx, path)
	GetMetrics().RecordOperation(p.Type(), "get", time.Since(start), err)
	return secret, err
}

func (p *VaultProvider) getSecret(ctx context.Context, path string) (*Secret, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, ErrInvalidPath
	}

	fullPath := p.mount + "/data/" + path
	resp, err := p.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %s: %w", fullPath, err)
	}
	if resp == nil || resp.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, fullPath)
	}

	// Soft-deleted KV v2 secrets come back with data: null.
	payload, hasData := resp.Data["data"]
	if hasData && payload == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, fullPath)
	}
	values, ok := payload.(map[string]interface{})
	if !ok {
		// KV v1 layout
		values = resp.Data
	}

	data := make(map[string][]byte, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			data[k] = []byte(val)
		default:
			raw, err := json.Marshal(val)
			if err != nil {
				continue
			}
			data[k] = raw
		}
	}

	version := ""
	if meta, ok := resp.Data["metadata"].(map[string]interface{}); ok {
		if v, ok := meta["version"]; ok {
			version = fmt.Sprint(v)
		}
	}

	p.logger.Debug("secret read from vault",
		observability.String("path", fullPath),
		observability.Int("keys", len(data)),
	)

	return &Secret{Name: path, Data: data, Version: version}, nil
}

// Close clears the client token.
func (p *VaultProvider) Close() error {
	p.client.ClearToken()
	return nil
}
