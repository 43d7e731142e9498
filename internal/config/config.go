package config

import "time"

// Identity verification modes.
const (
	IdentityModeService       = "service"
	IdentityModeIntrospection = "introspection"
)

// Rate limiting algorithms.
const (
	AlgorithmFixedWindow = "fixed_window"
	AlgorithmTokenBucket = "token_bucket"
)

// Store backends shared by the rate limiter and the verification cache.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Secrets providers.
const (
	SecretsProviderEnv   = "env"
	SecretsProviderVault = "vault"
)

// Config is the complete gateway configuration. It is resolved once at
// startup and handed to component constructors; nothing mutates it
// afterwards.
type Config struct {
	Server         ServerConfig         `yaml:"server" json:"server"`
	Identity       IdentityConfig       `yaml:"identity" json:"identity"`
	Routes         []RouteConfig        `yaml:"routes" json:"routes"`
	RateLimit      RateLimitConfig      `yaml:"rateLimit" json:"rateLimit"`
	Cache          CacheConfig          `yaml:"cache" json:"cache"`
	Redis          RedisConfig          `yaml:"redis" json:"redis"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker" json:"circuitBreaker"`
	Secrets        SecretsConfig        `yaml:"secrets" json:"secrets"`
	Observability  ObservabilityConfig  `yaml:"observability" json:"observability"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	Address           string   `yaml:"address" json:"address"`
	Port              int      `yaml:"port" json:"port"`
	ReadTimeout       Duration `yaml:"readTimeout" json:"readTimeout"`
	ReadHeaderTimeout Duration `yaml:"readHeaderTimeout" json:"readHeaderTimeout"`
	WriteTimeout      Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout       Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout   Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
	MaxBodyBytes      int64    `yaml:"maxBodyBytes" json:"maxBodyBytes"`
}

// IdentityConfig configures the identity authority used to verify
// credentials.
type IdentityConfig struct {
	// Mode selects the verification call: "service" calls the auth
	// service's verifyToken endpoint, "introspection" calls the OIDC
	// token introspection endpoint directly.
	Mode string `yaml:"mode" json:"mode"`

	// AuthURL is the base URL of the auth service (mode "service").
	AuthURL string `yaml:"authURL" json:"authURL"`

	// IssuerURL is the base URL of the OIDC server (mode "introspection").
	IssuerURL string `yaml:"issuerURL" json:"issuerURL"`

	ClientID        string `yaml:"clientID" json:"clientID"`
	ClientSecret    string `yaml:"clientSecret" json:"-"`
	ClientSecretRef string `yaml:"clientSecretRef" json:"clientSecretRef"`

	Timeout Duration `yaml:"timeout" json:"timeout"`
}

// RouteConfig binds a path prefix to a backend.
type RouteConfig struct {
	Name         string   `yaml:"name" json:"name"`
	Prefix       string   `yaml:"prefix" json:"prefix"`
	Target       string   `yaml:"target" json:"target"`
	RequiresAuth bool     `yaml:"requiresAuth" json:"requiresAuth"`
	Timeout      Duration `yaml:"timeout" json:"timeout"`
}

// RateLimitConfig configures per-client admission control.
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled" json:"enabled"`
	Algorithm         string   `yaml:"algorithm" json:"algorithm"`
	Window            Duration `yaml:"window" json:"window"`
	Max               int      `yaml:"max" json:"max"`
	Burst             int      `yaml:"burst" json:"burst"`
	Store             string   `yaml:"store" json:"store"`
	KeyPrefix         string   `yaml:"keyPrefix" json:"keyPrefix"`
	TrustProxyHeaders bool     `yaml:"trustProxyHeaders" json:"trustProxyHeaders"`
}

// CacheConfig configures the verification cache.
type CacheConfig struct {
	Type       string   `yaml:"type" json:"type"`
	TTL        Duration `yaml:"ttl" json:"ttl"`
	MaxEntries int      `yaml:"maxEntries" json:"maxEntries"`
	KeyPrefix  string   `yaml:"keyPrefix" json:"keyPrefix"`
	HashKeys   bool     `yaml:"hashKeys" json:"hashKeys"`
}

// RedisConfig holds the connection settings shared by every Redis-backed
// store.
type RedisConfig struct {
	Address      string   `yaml:"address" json:"address"`
	Password     string   `yaml:"password" json:"-"`
	PasswordRef  string   `yaml:"passwordRef" json:"passwordRef"`
	DB           int      `yaml:"db" json:"db"`
	PoolSize     int      `yaml:"poolSize" json:"poolSize"`
	DialTimeout  Duration `yaml:"dialTimeout" json:"dialTimeout"`
	ReadTimeout  Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout" json:"writeTimeout"`
}

// CircuitBreakerConfig configures the breakers guarding the identity
// authority and each backend.
type CircuitBreakerConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Threshold int      `yaml:"threshold" json:"threshold"`
	Interval  Duration `yaml:"interval" json:"interval"`
	Timeout   Duration `yaml:"timeout" json:"timeout"`
}

// SecretsConfig selects where secret references are resolved.
type SecretsConfig struct {
	Provider  string      `yaml:"provider" json:"provider"`
	EnvPrefix string      `yaml:"envPrefix" json:"envPrefix"`
	Vault     VaultConfig `yaml:"vault" json:"vault"`
}

// VaultConfig configures the Vault KV v2 secrets provider.
type VaultConfig struct {
	Address   string   `yaml:"address" json:"address"`
	Token     string   `yaml:"token" json:"-"`
	Namespace string   `yaml:"namespace" json:"namespace"`
	Mount     string   `yaml:"mount" json:"mount"`
	Timeout   Duration `yaml:"timeout" json:"timeout"`
}

// ObservabilityConfig groups logging, metrics and tracing settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig configures the metrics and health listener.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Port      int    `yaml:"port" json:"port"`
	Path      string `yaml:"path" json:"path"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
}

// Default values.
const (
	DefaultPort           = 3000
	DefaultAuthURL        = "http://localhost:3001"
	DefaultRealmURL       = "http://localhost:3002"
	DefaultClientID       = "bifrost"
	DefaultRateLimitMax   = 100
	DefaultRateWindow     = time.Minute
	DefaultCacheTTL       = 5 * time.Minute
	DefaultCacheEntries   = 10000
	DefaultVerifyTimeout  = 5 * time.Second
	DefaultBackendTimeout = 30 * time.Second
	DefaultRedisAddress   = "127.0.0.1:6379"
	DefaultMetricsPort    = 9090
)

// DefaultConfig returns the configuration used when no file is given. The
// auth service route is open; every realm requires a verified credential.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              DefaultPort,
			ReadTimeout:       Duration(30 * time.Second),
			ReadHeaderTimeout: Duration(10 * time.Second),
			WriteTimeout:      Duration(60 * time.Second),
			IdleTimeout:       Duration(120 * time.Second),
			ShutdownTimeout:   Duration(30 * time.Second),
			MaxBodyBytes:      10 << 20,
		},
		Identity: IdentityConfig{
			Mode:     IdentityModeService,
			AuthURL:  DefaultAuthURL,
			ClientID: DefaultClientID,
			Timeout:  Duration(DefaultVerifyTimeout),
		},
		Routes: DefaultRoutes(),
		RateLimit: RateLimitConfig{
			Enabled:   true,
			Algorithm: AlgorithmFixedWindow,
			Window:    Duration(DefaultRateWindow),
			Max:       DefaultRateLimitMax,
			Burst:     DefaultRateLimitMax,
			Store:     StoreMemory,
			KeyPrefix: "ratelimit:",
		},
		Cache: CacheConfig{
			Type:       StoreMemory,
			TTL:        Duration(DefaultCacheTTL),
			MaxEntries: DefaultCacheEntries,
		},
		Redis: RedisConfig{
			Address:      DefaultRedisAddress,
			PoolSize:     10,
			DialTimeout:  Duration(5 * time.Second),
			ReadTimeout:  Duration(3 * time.Second),
			WriteTimeout: Duration(3 * time.Second),
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:   true,
			Threshold: 5,
			Interval:  Duration(time.Minute),
			Timeout:   Duration(30 * time.Second),
		},
		Secrets: SecretsConfig{
			Provider:  SecretsProviderEnv,
			EnvPrefix: "BIFROST_SECRET_",
			Vault: VaultConfig{
				Mount:   "secret",
				Timeout: Duration(10 * time.Second),
			},
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Port:      DefaultMetricsPort,
				Path:      "/metrics",
				Namespace: "gateway",
			},
			Tracing: TracingConfig{
				ServiceName:  "bifrost",
				SamplingRate: 1.0,
			},
		},
	}
}

// DefaultRoutes returns the built-in route table.
func DefaultRoutes() []RouteConfig {
	return []RouteConfig{
		{Name: "auth", Prefix: "/api/auth", Target: DefaultAuthURL},
		{Name: "asgard", Prefix: "/api/asgard", Target: DefaultRealmURL, RequiresAuth: true},
		{Name: "midgard", Prefix: "/api/midgard", Target: DefaultRealmURL, RequiresAuth: true},
		{Name: "jotunheim", Prefix: "/api/jotunheim", Target: DefaultRealmURL, RequiresAuth: true},
	}
}

// RouteTimeout returns the backend timeout of the route, falling back to
// the default.
func (r RouteConfig) RouteTimeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout.Duration()
	}
	return DefaultBackendTimeout
}
