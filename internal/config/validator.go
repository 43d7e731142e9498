package config

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates gateway configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a gateway configuration.
func ValidateConfig(config *Config) error {
	return NewValidator().Validate(config)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&config.Server)
	v.validateIdentity(&config.Identity)
	v.validateRoutes(config.Routes)
	v.validateRateLimit(&config.RateLimit)
	v.validateCache(&config.Cache)
	v.validateRedis(config)
	v.validateCircuitBreaker(&config.CircuitBreaker)
	v.validateSecrets(&config.Secrets)
	v.validateObservability(&config.Observability)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateServer(server *ServerConfig) {
	if server.Port < 1 || server.Port > 65535 {
		v.addError("server.port", "port must be between 1 and 65535")
	}
	if server.MaxBodyBytes < 0 {
		v.addError("server.maxBodyBytes", "maxBodyBytes cannot be negative")
	}
}

func (v *Validator) validateIdentity(identity *IdentityConfig) {
	switch identity.Mode {
	case IdentityModeService:
		v.validateBaseURL(identity.AuthURL, "identity.authURL")
	case IdentityModeIntrospection:
		v.validateBaseURL(identity.IssuerURL, "identity.issuerURL")
		if identity.ClientID == "" {
			v.addError("identity.clientID", "clientID is required for introspection")
		}
	default:
		v.addError("identity.mode", fmt.Sprintf("mode must be %q or %q", IdentityModeService, IdentityModeIntrospection))
	}

	if identity.Timeout <= 0 {
		v.addError("identity.timeout", "timeout must be positive")
	}
}

func (v *Validator) validateRoutes(routes []RouteConfig) {
	if len(routes) == 0 {
		v.addError("routes", "at least one route is required")
		return
	}

	names := make(map[string]bool, len(routes))
	prefixes := make(map[string]string, len(routes))

	for i := range routes {
		route := &routes[i]
		path := fmt.Sprintf("routes[%d]", i)

		if route.Name == "" {
			v.addError(path+".name", "name is required")
		} else if names[route.Name] {
			v.addError(path+".name", fmt.Sprintf("duplicate route name: %s", route.Name))
		}
		names[route.Name] = true

		v.validateRoutePrefix(route.Prefix, path+".prefix", prefixes, route.Name)
		v.validateBaseURL(route.Target, path+".target")

		if route.Timeout < 0 {
			v.addError(path+".timeout", "timeout cannot be negative")
		}
	}
}

func (v *Validator) validateRoutePrefix(prefix, path string, seen map[string]string, name string) {
	switch {
	case prefix == "":
		v.addError(path, "prefix is required")
		return
	case !strings.HasPrefix(prefix, "/"):
		v.addError(path, "prefix must start with '/'")
		return
	case prefix != "/" && strings.HasSuffix(prefix, "/"):
		v.addError(path, "prefix must not end with '/'")
		return
	case strings.Contains(prefix, "//"):
		v.addError(path, "prefix must not contain empty segments")
		return
	}

	if other, ok := seen[prefix]; ok {
		v.addError(path, fmt.Sprintf("prefix %s is already used by route %s", prefix, other))
		return
	}
	seen[prefix] = name
}

func (v *Validator) validateBaseURL(raw, path string) {
	if raw == "" {
		v.addError(path, "URL is required")
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		v.addError(path, fmt.Sprintf("invalid URL: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		v.addError(path, "URL scheme must be http or https")
	}
	if u.Host == "" {
		v.addError(path, "URL host is required")
	}
}

func (v *Validator) validateRateLimit(rl *RateLimitConfig) {
	if !rl.Enabled {
		return
	}
	if rl.Max <= 0 {
		v.addError("rateLimit.max", "max must be positive")
	}
	if rl.Window <= 0 {
		v.addError("rateLimit.window", "window must be positive")
	}
	switch rl.Algorithm {
	case AlgorithmFixedWindow:
	case AlgorithmTokenBucket:
		if rl.Burst <= 0 {
			v.addError("rateLimit.burst", "burst must be positive for token_bucket")
		}
	default:
		v.addError("rateLimit.algorithm", fmt.Sprintf("unknown algorithm: %s", rl.Algorithm))
	}
	v.validateStoreType(rl.Store, "rateLimit.store")
}

func (v *Validator) validateCache(c *CacheConfig) {
	v.validateStoreType(c.Type, "cache.type")
	if c.TTL < 0 {
		v.addError("cache.ttl", "ttl cannot be negative")
	}
	if c.MaxEntries < 0 {
		v.addError("cache.maxEntries", "maxEntries cannot be negative")
	}
}

func (v *Validator) validateStoreType(store, path string) {
	if store != StoreMemory && store != StoreRedis {
		v.addError(path, fmt.Sprintf("store must be %q or %q", StoreMemory, StoreRedis))
	}
}

func (v *Validator) validateRedis(config *Config) {
	usesRedis := config.Cache.Type == StoreRedis ||
		(config.RateLimit.Enabled && config.RateLimit.Store == StoreRedis)
	if !usesRedis {
		return
	}
	if config.Redis.Address == "" {
		v.addError("redis.address", "address is required when a redis store is selected")
	}
	if config.Redis.DB < 0 {
		v.addError("redis.db", "db cannot be negative")
	}
}

func (v *Validator) validateCircuitBreaker(cb *CircuitBreakerConfig) {
	if !cb.Enabled {
		return
	}
	if cb.Threshold <= 0 {
		v.addError("circuitBreaker.threshold", "threshold must be positive")
	}
	if cb.Timeout <= 0 {
		v.addError("circuitBreaker.timeout", "timeout must be positive")
	}
}

func (v *Validator) validateSecrets(s *SecretsConfig) {
	switch s.Provider {
	case "", SecretsProviderEnv:
	case SecretsProviderVault:
		if s.Vault.Address == "" {
			v.addError("secrets.vault.address", "address is required for the vault provider")
		}
		if s.Vault.Mount == "" {
			v.addError("secrets.vault.mount", "mount is required for the vault provider")
		}
	default:
		v.addError("secrets.provider", fmt.Sprintf("unknown secrets provider: %s", s.Provider))
	}
}

func (v *Validator) validateObservability(obs *ObservabilityConfig) {
	if obs.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(obs.Logging.Level); err != nil {
			v.addError("observability.logging.level", fmt.Sprintf("invalid log level: %s", obs.Logging.Level))
		}
	}
	switch obs.Logging.Format {
	case "", "json", "console":
	default:
		v.addError("observability.logging.format", "format must be json or console")
	}

	if obs.Metrics.Enabled {
		if obs.Metrics.Port < 1 || obs.Metrics.Port > 65535 {
			v.addError("observability.metrics.port", "port must be between 1 and 65535")
		}
		if !strings.HasPrefix(obs.Metrics.Path, "/") {
			v.addError("observability.metrics.path", "path must start with '/'")
		}
	}

	if obs.Tracing.SamplingRate < 0 || obs.Tracing.SamplingRate > 1 {
		v.addError("observability.tracing.samplingRate", "samplingRate must be between 0 and 1")
	}
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{
		Path:    path,
		Message: message,
	})
}
