package proxy

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for proxy operations.
var (
	// ErrUpstreamTimeout indicates that the backend did not answer within
	// the route timeout.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrUpstreamUnavailable indicates a transport failure talking to the
	// backend.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrCircuitOpen indicates that the route's breaker rejected the call.
	ErrCircuitOpen = errors.New("upstream circuit open")

	// ErrClientGone indicates that the client canceled the request.
	ErrClientGone = errors.New("client canceled request")

	// ErrRequestTooLarge indicates that the client body exceeded the
	// gateway limit while it was being relayed.
	ErrRequestTooLarge = errors.New("request body too large")

	// errUpstreamStatus marks a 5xx backend answer for the breaker. The
	// response itself is relayed untouched.
	errUpstreamStatus = errors.New("upstream answered with a server error")
)

// ProxyError represents a failed forward.
type ProxyError struct {
	Op     string // Operation that failed
	Route  string // Route name
	Target string // Backend URL
	Cause  error  // Underlying error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("proxy error [%s] route=%s target=%s: %v", e.Op, e.Route, e.Target, e.Cause)
	}
	return fmt.Sprintf("proxy error [%s] route=%s target=%s", e.Op, e.Route, e.Target)
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Cause
}

// Status returns the HTTP status answered to the client.
func (e *ProxyError) Status() int {
	switch {
	case errors.Is(e.Cause, ErrRequestTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(e.Cause, ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(e.Cause, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// Kind returns the metric label of the failure.
func (e *ProxyError) Kind() string {
	switch {
	case errors.Is(e.Cause, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(e.Cause, ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(e.Cause, ErrClientGone):
		return "client_canceled"
	case errors.Is(e.Cause, ErrRequestTooLarge):
		return "too_large"
	default:
		return "unavailable"
	}
}

// NewProxyError creates a new ProxyError.
func NewProxyError(op, route, target string, cause error) *ProxyError {
	return &ProxyError{Op: op, Route: route, Target: target, Cause: cause}
}

// IsProxyError checks if an error is a ProxyError.
func IsProxyError(err error) bool {
	var proxyErr *ProxyError
	return errors.As(err, &proxyErr)
}
