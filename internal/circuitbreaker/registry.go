package circuitbreaker

import (
	"sort"
	"sync"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/bifrost/internal/config"
	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// Registry hands out one breaker per name, all sharing the same settings.
// Backends get one breaker per route.
type Registry struct {
	breakers sync.Map
	config   *config.CircuitBreakerConfig
	logger   observability.Logger
	opts     []Option
}

// NewRegistry creates a new circuit breaker registry. Extra options are
// applied to every breaker it creates.
func NewRegistry(cfg *config.CircuitBreakerConfig, logger observability.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Registry{
		config: cfg,
		logger: logger,
		opts:   opts,
	}
}

// Enabled reports whether the registry produces breakers.
func (r *Registry) Enabled() bool {
	return r != nil && r.config != nil && r.config.Enabled
}

// Get returns a breaker by name, or nil if none was created.
func (r *Registry) Get(name string) *Breaker {
	value, ok := r.breakers.Load(name)
	if !ok {
		return nil
	}
	return value.(*Breaker)
}

// GetOrCreate returns the named breaker, creating it on first use. It
// returns nil when breakers are disabled.
func (r *Registry) GetOrCreate(name string) *Breaker {
	if !r.Enabled() {
		return nil
	}
	if value, ok := r.breakers.Load(name); ok {
		return value.(*Breaker)
	}

	opts := append([]Option{WithLogger(r.logger)}, r.opts...)
	b := FromConfig(name, r.config, opts...)

	actual, loaded := r.breakers.LoadOrStore(name, b)
	if loaded {
		return actual.(*Breaker)
	}

	r.logger.Debug("created circuit breaker",
		observability.String("name", name),
	)
	return b
}

// States returns the state of every breaker, keyed by name.
func (r *Registry) States() map[string]gobreaker.State {
	states := make(map[string]gobreaker.State)
	r.breakers.Range(func(key, value interface{}) bool {
		states[key.(string)] = value.(*Breaker).State()
		return true
	})
	return states
}

// Names returns the sorted breaker names.
func (r *Registry) Names() []string {
	var names []string
	r.breakers.Range(func(key, _ interface{}) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}
