// Package circuitbreaker guards outbound calls to the identity authority
// and to backends with gobreaker circuit breakers.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/bifrost/internal/config"
	"github.com/vyrodovalexey/bifrost/internal/observability"
)

var tracer = otel.Tracer("bifrost/circuitbreaker")

// ErrCircuitOpen is returned when the breaker rejects a call without
// executing it, either because it is open or because the half-open probe
// quota is used up.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// StateFunc is called after every state transition.
type StateFunc func(name string, from, to gobreaker.State)

// Breaker wraps gobreaker.CircuitBreaker. A nil *Breaker executes calls
// unguarded, which is what a disabled configuration produces.
type Breaker struct {
	cb            *gobreaker.CircuitBreaker
	name          string
	logger        observability.Logger
	isSuccessful  func(error) bool
	stateCallback StateFunc
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// WithIsSuccessful decides which errors do not count as failures.
func WithIsSuccessful(fn func(error) bool) Option {
	return func(b *Breaker) {
		b.isSuccessful = fn
	}
}

// WithStateCallback registers a callback for state transitions.
func WithStateCallback(fn StateFunc) Option {
	return func(b *Breaker) {
		b.stateCallback = fn
	}
}

// New creates a breaker that trips once threshold requests were seen in
// the current interval and at least half of them failed. It stays open
// for timeout before letting threshold probe requests through.
func New(name string, threshold int, interval, timeout time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		name:   name,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}

	thresholdU32 := safeIntToUint32(threshold)
	if thresholdU32 == 0 {
		thresholdU32 = 1
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: thresholdU32,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < thresholdU32 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.5
		},
		IsSuccessful:  b.isSuccessful,
		OnStateChange: b.onStateChange,
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	GetMetrics().stateGauge.WithLabelValues(name).Set(stateValue(gobreaker.StateClosed))
	return b
}

// FromConfig creates a breaker from the gateway configuration. It returns
// nil when breakers are disabled.
func FromConfig(name string, cfg *config.CircuitBreakerConfig, opts ...Option) *Breaker {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return New(name, cfg.Threshold, cfg.Interval.Duration(), cfg.Timeout.Duration(), opts...)
}

func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	b.logger.Warn("circuit breaker state change",
		observability.String("name", name),
		observability.String("from", from.String()),
		observability.String("to", to.String()),
	)

	m := GetMetrics()
	m.transitionsTotal.WithLabelValues(name, from.String(), to.String()).Inc()
	m.stateGauge.WithLabelValues(name).Set(stateValue(to))

	_, span := tracer.Start(context.Background(),
		"circuitbreaker.state_change",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.AddEvent("state_change", trace.WithAttributes(
		attribute.String("circuitbreaker.name", name),
		attribute.String("circuitbreaker.from", from.String()),
		attribute.String("circuitbreaker.to", to.String()),
	))
	span.End()

	if b.stateCallback != nil {
		b.stateCallback(name, from, to)
	}
}

// Execute runs fn through the breaker. Rejections are reported as
// ErrCircuitOpen; errors returned by fn pass through unchanged.
func (b *Breaker) Execute(fn func() error) error {
	_, err := Run(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Run runs fn through the breaker and returns its result.
func Run[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}

	m := GetMetrics()
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		m.requestsTotal.WithLabelValues(b.name, "rejected").Inc()
		var zero T
		return zero, fmt.Errorf("%w: %s: %w", ErrCircuitOpen, b.name, err)
	}
	if err != nil {
		m.requestsTotal.WithLabelValues(b.name, "failure").Inc()
	} else {
		m.requestsTotal.WithLabelValues(b.name, "success").Inc()
	}

	result, _ := out.(T)
	return result, err
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

// State returns the current state. A nil breaker is always closed.
func (b *Breaker) State() gobreaker.State {
	if b == nil {
		return gobreaker.StateClosed
	}
	return b.cb.State()
}

// Counts returns the counters of the current generation.
func (b *Breaker) Counts() gobreaker.Counts {
	if b == nil {
		return gobreaker.Counts{}
	}
	return b.cb.Counts()
}

// IsOpen reports whether err is a breaker rejection.
func IsOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
