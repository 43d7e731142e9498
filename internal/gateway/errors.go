package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/bifrost/internal/auth"
	"github.com/vyrodovalexey/bifrost/internal/middleware"
	"github.com/vyrodovalexey/bifrost/internal/proxy"
)

// Sentinel errors for gateway operations.
var (
	// ErrGatewayNotStopped indicates that the gateway is not in
	// stopped state when a start operation is attempted.
	ErrGatewayNotStopped = errors.New("gateway is not in stopped state")

	// ErrGatewayNotRunning indicates that the gateway is not
	// running when a stop operation is attempted.
	ErrGatewayNotRunning = errors.New("gateway is not running")

	// ErrNilConfig indicates that a nil configuration was provided.
	ErrNilConfig = errors.New("configuration is required")

	// ErrNoRoutes indicates that no route table was provided.
	ErrNoRoutes = errors.New("route table is required")

	// ErrNoAuthorizer indicates that a route requires authorization but
	// the gateway has no authorizer.
	ErrNoAuthorizer = errors.New("authorizer is required by authenticated routes")
)

// ErrorKind classifies the failures answered by the gateway itself.
type ErrorKind int

// Error kinds.
const (
	KindInternal ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	// KindForbidden completes the taxonomy of client-facing failures. The
	// gateway never decides it; a backend's 403 is relayed untouched.
	KindForbidden
	KindNotFound
	KindPayloadTooLarge
	KindRateLimited
	KindUpstream
)

// String returns the log label of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstream:
		return "upstream_error"
	default:
		return "internal"
	}
}

// Client-facing messages.
const (
	MessageNotFound            = "No route matches the request path"
	MessageUpstreamUnavailable = "Upstream service unavailable"
	MessageUpstreamTimeout     = "Upstream service timed out"
	MessageUpstreamCircuitOpen = "Upstream service temporarily unavailable"
	MessageInternal            = "An unexpected error occurred"
)

// Error is a failure answered by the gateway. Message is sent to the
// client; Cause is only logged.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error

	// status overrides the kind's default status, used for the several
	// statuses of upstream failures.
	status int
}

// NewError creates a new Error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("gateway error (%s): %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("gateway error (%s): %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Status returns the HTTP status answered to the client.
func (e *Error) Status() int {
	if e.status != 0 {
		return e.status
	}
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fromAuthError maps an authorization failure. Anything that is not an
// *auth.AuthError is internal.
func fromAuthError(err error) *Error {
	var authErr *auth.AuthError
	if !errors.As(err, &authErr) {
		return NewError(KindInternal, MessageInternal, err)
	}
	if authErr.Status() == http.StatusBadRequest {
		return NewError(KindBadRequest, authErr.Message, err)
	}
	return NewError(KindUnauthorized, authErr.Message, err)
}

// fromProxyError maps a failed forward.
func fromProxyError(err *proxy.ProxyError) *Error {
	if errors.Is(err, proxy.ErrRequestTooLarge) {
		return NewError(KindPayloadTooLarge, middleware.MessageBodyTooLarge, err)
	}

	message := MessageUpstreamUnavailable
	switch err.Status() {
	case http.StatusGatewayTimeout:
		message = MessageUpstreamTimeout
	case http.StatusServiceUnavailable:
		message = MessageUpstreamCircuitOpen
	}
	return &Error{Kind: KindUpstream, Message: message, Cause: err, status: err.Status()}
}
