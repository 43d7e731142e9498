package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/bifrost/internal/auth"
	"github.com/vyrodovalexey/bifrost/internal/cache"
	"github.com/vyrodovalexey/bifrost/internal/circuitbreaker"
	"github.com/vyrodovalexey/bifrost/internal/config"
	"github.com/vyrodovalexey/bifrost/internal/gateway"
	"github.com/vyrodovalexey/bifrost/internal/health"
	"github.com/vyrodovalexey/bifrost/internal/observability"
	"github.com/vyrodovalexey/bifrost/internal/proxy"
	"github.com/vyrodovalexey/bifrost/internal/ratelimit"
	"github.com/vyrodovalexey/bifrost/internal/ratelimit/store"
	"github.com/vyrodovalexey/bifrost/internal/redisclient"
	"github.com/vyrodovalexey/bifrost/internal/router"
	"github.com/vyrodovalexey/bifrost/internal/secrets"
)

// application holds every long-lived component of the process.
type application struct {
	config        *config.Config
	logger        observability.Logger
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	secrets       secrets.Provider
	redisClient   *redis.Client
	cacheStore    cache.Store
	limiter       ratelimit.Limiter
	breakers      *circuitbreaker.Registry
	healthChecker *health.Checker
	gateway       *gateway.Gateway
	metricsServer *http.Server
	reloadMetrics *reloadMetrics
}

// initApplication wires the gateway. Components are built bottom-up:
// observability, secrets, shared Redis client, stores, the auth gate, the
// route table and finally the gateway itself. On error everything built
// so far is released.
func initApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (_ *application, err error) {
	app := &application{
		config: cfg,
		logger: logger,
	}
	defer func() {
		if err != nil {
			app.closeResources()
		}
	}()

	app.metrics = observability.NewMetrics(cfg.Observability.Metrics.Namespace)
	app.metrics.SetBuildInfo(version, gitCommit, buildTime)
	registerComponentMetrics(app.metrics)
	app.reloadMetrics = newReloadMetrics(app.metrics)

	app.tracer, err = initTracer(cfg, logger)
	if err != nil {
		return nil, err
	}

	app.secrets, err = secrets.New(&cfg.Secrets, logger)
	if err != nil {
		return nil, fmt.Errorf("secrets provider: %w", err)
	}
	if err = resolveSecrets(ctx, cfg, app.secrets); err != nil {
		return nil, err
	}

	if usesRedis(cfg) {
		app.redisClient, err = redisclient.Connect(ctx, redisclient.FromGatewayConfig(&cfg.Redis), logger)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	app.cacheStore, err = cache.New(&cfg.Cache, app.redisClient, logger)
	if err != nil {
		return nil, fmt.Errorf("verification cache: %w", err)
	}

	app.limiter, err = ratelimit.New(&cfg.RateLimit, redisClientOrNil(app.redisClient), logger)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	gate, err := initAuthGate(cfg, app.cacheStore, app.metrics, logger)
	if err != nil {
		return nil, err
	}

	routes, err := router.FromConfig(cfg.Routes)
	if err != nil {
		return nil, err
	}
	initProxyMetrics(app.metrics, routes)

	app.breakers = circuitbreaker.NewRegistry(&cfg.CircuitBreaker, logger)
	app.healthChecker = initHealthChecker(cfg, app.redisClient, app.breakers)

	app.gateway, err = gateway.New(cfg, routes,
		gateway.WithLogger(logger),
		gateway.WithMetrics(app.metrics),
		gateway.WithLimiter(app.limiter),
		gateway.WithAuthorizer(gate),
		gateway.WithBreakers(app.breakers),
		gateway.WithHealthChecker(app.healthChecker),
	)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	return app, nil
}

// initTracer creates the tracer and routes OpenTelemetry's internal logs
// through the gateway logger.
func initTracer(cfg *config.Config, logger observability.Logger) (*observability.Tracer, error) {
	tc := cfg.Observability.Tracing

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  tc.ServiceName,
		OTLPEndpoint: tc.OTLPEndpoint,
		SamplingRate: tc.SamplingRate,
		Enabled:      tc.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}
	observability.RouteOTelLogs(logger)

	if tc.Enabled {
		logger.Info("tracing enabled",
			observability.String("endpoint", tc.OTLPEndpoint),
			observability.Float64("sampling_rate", tc.SamplingRate),
		)
	}
	return tracer, nil
}

// resolveSecrets fills secret values from their references. Inline values
// stay untouched when no reference is configured.
func resolveSecrets(ctx context.Context, cfg *config.Config, provider secrets.Provider) error {
	if ref := cfg.Identity.ClientSecretRef; ref != "" {
		value, err := secrets.Resolve(ctx, provider, ref)
		if err != nil {
			return fmt.Errorf("identity.clientSecretRef: %w", err)
		}
		cfg.Identity.ClientSecret = value
	}

	if ref := cfg.Redis.PasswordRef; ref != "" {
		value, err := secrets.Resolve(ctx, provider, ref)
		if err != nil {
			return fmt.Errorf("redis.passwordRef: %w", err)
		}
		cfg.Redis.Password = value
	}

	return nil
}

// usesRedis reports whether any store needs the shared Redis client. The
// token bucket limiter keeps its state in memory whatever the store says.
func usesRedis(cfg *config.Config) bool {
	if cfg.Cache.Type == config.StoreRedis {
		return true
	}
	rl := cfg.RateLimit
	return rl.Enabled && rl.Store == config.StoreRedis && rl.Algorithm != config.AlgorithmTokenBucket
}

// redisClientOrNil avoids handing a typed nil to the UniversalClient
// parameter of the rate limit store.
func redisClientOrNil(client *redis.Client) redis.UniversalClient {
	if client == nil {
		return nil
	}
	return client
}

// initAuthGate builds the verifier, its breaker and the verification cache.
func initAuthGate(
	cfg *config.Config,
	cacheStore cache.Store,
	metrics *observability.Metrics,
	logger observability.Logger,
) (*auth.Gate, error) {
	authMetrics := auth.NewMetricsWithRegisterer(cfg.Observability.Metrics.Namespace, metrics.Registry())
	authMetrics.MustRegister()

	opts := []auth.VerifierOption{
		auth.WithVerifierLogger(logger),
		auth.WithVerifierMetrics(authMetrics),
	}
	breaker := circuitbreaker.FromConfig("identity", &cfg.CircuitBreaker,
		circuitbreaker.WithLogger(logger),
		circuitbreaker.WithIsSuccessful(auth.BreakerIsSuccessful),
	)
	if breaker != nil {
		opts = append(opts, auth.WithBreaker(breaker))
	}

	verifier, err := auth.NewVerifier(&cfg.Identity, cfg.Identity.ClientSecret, opts...)
	if err != nil {
		return nil, fmt.Errorf("identity verifier: %w", err)
	}

	verificationCache := auth.NewVerificationCache(cacheStore, cfg.Cache.TTL.Duration(),
		auth.WithCacheLogger(logger),
	)

	return auth.NewGate(verificationCache, verifier,
		auth.WithGateLogger(logger),
		auth.WithGateMetrics(authMetrics),
		auth.WithSharedVerifyTimeout(cfg.Identity.Timeout.Duration()),
	), nil
}

// initProxyMetrics registers the forwarder metrics on the gateway registry
// and pre-populates one series set per route.
func initProxyMetrics(metrics *observability.Metrics, routes *router.Table) {
	proxy.InitMetrics(metrics.Registry())

	rules := routes.Rules()
	names := make([]string, 0, len(rules))
	for _, rule := range rules {
		names = append(names, rule.Name)
	}
	proxy.InitVecMetrics(names...)
}

// initHealthChecker registers the readiness checks that apply to cfg.
func initHealthChecker(cfg *config.Config, client *redis.Client, breakers *circuitbreaker.Registry) *health.Checker {
	checker := health.NewChecker(version)

	if client != nil {
		checker.RegisterCheck("redis", health.RedisCheck(client))
	}
	if breakers.Enabled() {
		checker.RegisterCheck("circuit_breakers", health.BreakerCheck(breakers))
	}
	if url := identityURL(&cfg.Identity); url != "" {
		checker.RegisterCheck("identity", health.HTTPCheck(nil, url))
	}

	return checker
}

// identityURL returns the authority base URL probed by readiness.
func identityURL(cfg *config.IdentityConfig) string {
	if cfg.Mode == config.IdentityModeIntrospection {
		return strings.TrimRight(cfg.IssuerURL, "/")
	}
	return strings.TrimRight(cfg.AuthURL, "/")
}

// registerComponentMetrics exposes the package-level collectors on the
// gateway registry so one /metrics endpoint serves all of them.
func registerComponentMetrics(metrics *observability.Metrics) {
	registry := metrics.Registry()

	cache.GetMetrics().MustRegister(registry)
	store.GetRedisMetrics().MustRegister(registry)
	redisclient.GetMetrics().MustRegister(registry)
	secrets.GetMetrics().MustRegister(registry)
	circuitbreaker.GetMetrics().MustRegister(registry)
	health.GetMetrics().MustRegister(registry)
}

// closeResources releases what initApplication opened, newest first.
func (app *application) closeResources() {
	if app.limiter != nil {
		if err := app.limiter.Close(); err != nil {
			app.logger.Warn("failed to close rate limiter", observability.Error(err))
		}
	}
	if app.cacheStore != nil {
		if err := app.cacheStore.Close(); err != nil {
			app.logger.Warn("failed to close verification cache", observability.Error(err))
		}
	}
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Warn("failed to close redis client", observability.Error(err))
		}
	}
	if app.secrets != nil {
		if err := app.secrets.Close(); err != nil {
			app.logger.Warn("failed to close secrets provider", observability.Error(err))
		}
	}
	if app.tracer != nil {
		if err := app.tracer.Shutdown(context.Background()); err != nil {
			app.logger.Warn("failed to shutdown tracer", observability.Error(err))
		}
	}
}
