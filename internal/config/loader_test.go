package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadConfigFromReader_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromReader_MergesDefaults(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  port: 8000
rateLimit:
  max: 10
  window: 30s
routes:
  - name: api
    prefix: /api
    target: http://backend:8080
    requiresAuth: true
    timeout: 2s
`
	cfg, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.RateLimit.Max)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window.Duration())
	assert.True(t, cfg.RateLimit.Enabled, "untouched fields keep their defaults")
	assert.Equal(t, AlgorithmFixedWindow, cfg.RateLimit.Algorithm)
	assert.Equal(t, DefaultCacheTTL, cfg.Cache.TTL.Duration())

	require.Len(t, cfg.Routes, 1, "a routes list replaces the default table")
	assert.Equal(t, "api", cfg.Routes[0].Name)
	assert.Equal(t, 2*time.Second, cfg.Routes[0].RouteTimeout())
}

func TestLoadConfigFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFromReader(strings.NewReader("serverr:\n  port: 1\n"))
	assert.Error(t, err)
}

func TestLoadConfigFromReader_InvalidDuration(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFromReader(strings.NewReader("cache:\n  ttl: forever\n"))
	assert.Error(t, err)
}

func TestLoader_SubstituteEnvVars(t *testing.T) {
	t.Parallel()

	l := NewLoader(WithLookup(mapLookup(map[string]string{
		"HOST":  "auth.internal",
		"EMPTY": "",
	})))

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "set", input: "${HOST}", want: "auth.internal"},
		{name: "default unused", input: "${HOST:-other}", want: "auth.internal"},
		{name: "default used", input: "${MISSING:-fallback}", want: "fallback"},
		{name: "missing no default", input: "x${MISSING}y", want: "xy"},
		{name: "set but empty", input: "${EMPTY:-fallback}", want: ""},
		{name: "escaped", input: "$${HOST}", want: "${HOST}"},
		{name: "plain", input: "no vars", want: "no vars"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, l.substituteEnvVars(tt.input))
		})
	}
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	content := `
identity:
  authURL: ${AUTH:-http://fallback:3001}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader(WithLookup(mapLookup(map[string]string{"AUTH": "http://auth:3001"}))).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://auth:3001", cfg.Identity.AuthURL)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestResolveConfigPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o600))

	resolved, err := ResolveConfigPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)

	_, err = ResolveConfigPath(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)

	_, err = ResolveConfigPath("definitely-not-here.yaml")
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	err := ApplyEnvOverrides(cfg, mapLookup(map[string]string{
		"PORT":        "4000",
		"AUTH_URL":    "http://auth:3001",
		"ASGARD_URL":  "http://asgard:3002",
		"REDIS_HOST":  "redis",
		"LOG_LEVEL":   "debug",
		"MIDGARD_URL": "",
	}))
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "http://auth:3001", cfg.Identity.AuthURL)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)

	targets := map[string]string{}
	for _, r := range cfg.Routes {
		targets[r.Name] = r.Target
	}
	assert.Equal(t, "http://auth:3001", targets["auth"])
	assert.Equal(t, "http://asgard:3002", targets["asgard"])
	assert.Equal(t, DefaultRealmURL, targets["midgard"], "empty values are ignored")
}

func TestApplyEnvOverrides_RedisPortOnly(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnvOverrides(cfg, mapLookup(map[string]string{"REDIS_PORT": "6380"})))
	assert.Equal(t, "127.0.0.1:6380", cfg.Redis.Address)
}

func TestApplyEnvOverrides_InvalidPort(t *testing.T) {
	t.Parallel()

	err := ApplyEnvOverrides(DefaultConfig(), mapLookup(map[string]string{"PORT": "http"}))
	assert.Error(t, err)
}

func TestRouteEnvName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ASGARD_URL", routeEnvName("asgard"))
	assert.Equal(t, "USER_API_URL", routeEnvName("user-api"))
}
