package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/bifrost/internal/auth"
	"github.com/vyrodovalexey/bifrost/internal/circuitbreaker"
	"github.com/vyrodovalexey/bifrost/internal/config"
	"github.com/vyrodovalexey/bifrost/internal/health"
	"github.com/vyrodovalexey/bifrost/internal/middleware"
	"github.com/vyrodovalexey/bifrost/internal/observability"
	"github.com/vyrodovalexey/bifrost/internal/proxy"
	"github.com/vyrodovalexey/bifrost/internal/ratelimit"
	"github.com/vyrodovalexey/bifrost/internal/router"
)

// Health endpoint paths served on the gateway port.
const (
	PathHealthz = "/healthz"
	PathReadyz  = "/readyz"
)

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Authorizer decides whether a credential may access a tenant.
// *auth.Gate implements it.
type Authorizer interface {
	Authorize(ctx context.Context, credential, tenant string) (*auth.Decision, error)
}

// Forwarder relays a request to a route's backend and writes the answer.
// *proxy.Forwarder implements it.
type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request, rule *router.RouteRule)
}

// ginModeOnce ensures gin.SetMode is only called once to avoid races.
var ginModeOnce sync.Once

// Gateway is the inbound HTTP server of the gateway.
type Gateway struct {
	config     *config.Config
	routes     *router.Table
	logger     observability.Logger
	metrics    *observability.Metrics
	limiter    ratelimit.Limiter
	keyFunc    ratelimit.KeyFunc
	authorizer Authorizer
	forwarder  Forwarder
	breakers   *circuitbreaker.Registry
	checker    *health.Checker

	engine    *gin.Engine
	listener  *Listener
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMetrics sets the pipeline metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = metrics
	}
}

// WithLimiter sets the per-client rate limiter.
func WithLimiter(limiter ratelimit.Limiter) Option {
	return func(g *Gateway) {
		g.limiter = limiter
	}
}

// WithKeyFunc overrides how rate limit keys are derived from requests.
func WithKeyFunc(keyFunc ratelimit.KeyFunc) Option {
	return func(g *Gateway) {
		g.keyFunc = keyFunc
	}
}

// WithAuthorizer sets the authorizer consulted by authenticated routes.
func WithAuthorizer(authorizer Authorizer) Option {
	return func(g *Gateway) {
		g.authorizer = authorizer
	}
}

// WithForwarder replaces the default forwarder.
func WithForwarder(forwarder Forwarder) Option {
	return func(g *Gateway) {
		g.forwarder = forwarder
	}
}

// WithBreakers guards backends of the default forwarder with breakers from
// registry.
func WithBreakers(registry *circuitbreaker.Registry) Option {
	return func(g *Gateway) {
		g.breakers = registry
	}
}

// WithHealthChecker serves readiness from checker.
func WithHealthChecker(checker *health.Checker) Option {
	return func(g *Gateway) {
		g.checker = checker
	}
}

// New creates a gateway serving routes. The engine is built immediately,
// so Handler can be used without starting a listener.
func New(cfg *config.Config, routes *router.Table, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if routes == nil {
		return nil, ErrNoRoutes
	}

	g := &Gateway{
		config: cfg,
		routes: routes,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.authorizer == nil {
		for _, rule := range routes.Rules() {
			if rule.RequiresAuth {
				return nil, fmt.Errorf("%w: route %q", ErrNoAuthorizer, rule.Name)
			}
		}
	}
	if g.limiter == nil {
		g.limiter = ratelimit.NewNoopLimiter()
	}
	if g.keyFunc == nil {
		g.keyFunc = ratelimit.ClientIPKeyFunc(cfg.RateLimit.TrustProxyHeaders)
	}
	if g.checker == nil {
		g.checker = health.NewChecker("")
	}
	if g.forwarder == nil {
		g.forwarder = proxy.NewForwarder(
			proxy.WithLogger(g.logger),
			proxy.WithBreakers(g.breakers),
			proxy.WithErrorHandler(g.writeProxyError),
		)
	}

	g.state.Store(int32(StateStopped))
	g.engine = g.buildEngine()
	return g, nil
}

// buildEngine installs the middleware chain, the health endpoints and the
// pipeline handler.
func (g *Gateway) buildEngine() *gin.Engine {
	ginModeOnce.Do(func() {
		if gin.Mode() == gin.DebugMode {
			gin.SetMode(gin.ReleaseMode)
		}
	})

	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.ContextWithFallback = true

	engine.Use(
		middleware.RecoveryWithConfig(middleware.RecoveryConfig{
			Logger:           g.logger,
			Metrics:          g.metrics,
			EnableStackTrace: true,
			PanicHandler: func(c *gin.Context, _ interface{}) {
				if c.Writer.Written() {
					c.Abort()
					return
				}
				g.abort(c, NewError(KindInternal, MessageInternal, nil))
			},
		}),
		middleware.RequestID(),
		middleware.Logging(g.logger),
		middleware.Tracing(),
		middleware.Metrics(g.metrics),
		middleware.RateLimit(middleware.RateLimitConfig{
			Limiter:   g.limiter,
			KeyFunc:   g.keyFunc,
			Logger:    g.logger,
			Metrics:   g.metrics,
			SkipPaths: []string{PathHealthz, PathReadyz},
			ErrorHandler: func(c *gin.Context) {
				g.abort(c, NewError(KindRateLimited, middleware.MessageRateLimited, nil))
			},
		}),
		middleware.BodyLimit(g.config.Server.MaxBodyBytes),
	)

	engine.GET(PathHealthz, gin.WrapF(g.checker.LivenessHandler()))
	engine.GET(PathReadyz, gin.WrapF(g.checker.ReadinessHandler()))
	engine.NoRoute(g.handle)

	return engine
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.engine
}

// Engine returns the gin engine.
func (g *Gateway) Engine() *gin.Engine {
	return g.engine
}

// Start binds the server address and begins serving.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrGatewayNotStopped
	}

	g.logger.Info("starting gateway",
		observability.Int("routes", len(g.routes.Rules())),
	)

	listener := NewListener(&g.config.Server, g.engine, g.logger)
	if err := listener.Start(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to start listener: %w", err)
	}

	g.mu.Lock()
	g.listener = listener
	g.startTime = time.Now()
	g.mu.Unlock()
	g.checker.SetDraining(false)
	g.state.Store(int32(StateRunning))

	for _, rule := range g.routes.Rules() {
		g.logger.Info("route registered",
			observability.String("name", rule.Name),
			observability.String("prefix", rule.Prefix),
			observability.String("target", rule.Target.String()),
			observability.Bool("requires_auth", rule.RequiresAuth),
		)
	}
	g.logger.Info("gateway started",
		observability.String("address", listener.Addr().String()),
	)
	return nil
}

// Stop stops accepting requests and drains in-flight ones. Without a
// deadline on ctx the configured shutdown timeout applies.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrGatewayNotRunning
	}

	g.logger.Info("stopping gateway")
	g.checker.SetDraining(true)

	if _, ok := ctx.Deadline(); !ok {
		timeout := g.config.Server.ShutdownTimeout.Duration()
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	g.mu.RLock()
	listener := g.listener
	g.mu.RUnlock()

	err := listener.Stop(ctx)
	g.state.Store(int32(StateStopped))

	if err != nil {
		return err
	}
	g.logger.Info("gateway stopped")
	return nil
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Addr returns the bound address, or nil when not running.
func (g *Gateway) Addr() net.Addr {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Uptime returns the gateway uptime.
func (g *Gateway) Uptime() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.startTime.IsZero() {
		return 0
	}
	return time.Since(g.startTime)
}
