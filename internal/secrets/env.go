package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// DefaultEnvPrefix is the default prefix for environment variable secrets.
const DefaultEnvPrefix = "BIFROST_SECRET_"

// EnvProvider reads secrets from environment variables with a configurable
// prefix. A JSON object value becomes a multi-key secret; anything else is
// stored under DefaultKey.
type EnvProvider struct {
	prefix string
	lookup func(string) (string, bool)
	logger observability.Logger
}

// EnvOption configures an EnvProvider.
type EnvOption func(*EnvProvider)

// WithEnvLookup replaces os.LookupEnv.
func WithEnvLookup(lookup func(string) (string, bool)) EnvOption {
	return func(p *EnvProvider) {
		p.lookup = lookup
	}
}

// WithEnvLogger sets the logger.
func WithEnvLogger(logger observability.Logger) EnvOption {
	return func(p *EnvProvider) {
		p.logger = logger
	}
}

// NewEnvProvider creates a new environment variable secrets provider.
func NewEnvProvider(prefix string, opts ...EnvOption) *EnvProvider {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	p := &EnvProvider{
		prefix: prefix,
		lookup: os.LookupEnv,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Type returns the provider type.
func (p *EnvProvider) Type() ProviderType {
	return ProviderTypeEnv
}

// envName converts a secret path to an environment variable name.
func (p *EnvProvider) envName(path string) string {
	name := strings.ToUpper(path)
	name = strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(name)
	return p.prefix + name
}

// GetSecret retrieves a secret from the environment.
func (p *EnvProvider) GetSecret(_ context.Context, path string) (*Secret, error) {
	start := time.Now()
	secret, err := p.getSecret(path)
	GetMetrics().RecordOperation(p.Type(), "get", time.Since(start), err)
	return secret, err
}

func (p *EnvProvider) getSecret(path string) (*Secret, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}

	envName := p.envName(path)
	value, ok := p.lookup(envName)
	if !ok {
		p.logger.Debug("environment variable not found",
			observability.String("env_var", envName),
		)
		return nil, fmt.Errorf("%w: environment variable %s not set", ErrSecretNotFound, envName)
	}

	data := make(map[string][]byte)

	var object map[string]interface{}
	if err := json.Unmarshal([]byte(value), &object); err == nil {
		for k, v := range object {
			if s, ok := v.(string); ok {
				data[k] = []byte(s)
				continue
			}
			raw, err := json.Marshal(v)
			if err != nil {
				continue
			}
			data[k] = raw
		}
	} else {
		data[DefaultKey] = []byte(value)
	}

	p.logger.Debug("secret read from environment",
		observability.String("env_var", envName),
		observability.Int("keys", len(data)),
	)

	return &Secret{Name: path, Data: data}, nil
}

// Close is a no-op.
func (p *EnvProvider) Close() error {
	return nil
}
