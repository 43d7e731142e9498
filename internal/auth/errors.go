package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Verification errors. Every error returned by a Verifier matches exactly
// one of them with errors.Is.
var (
	// ErrUnreachable indicates a transport failure, a timeout, a 5xx answer
	// or an open circuit in front of the identity authority.
	ErrUnreachable = errors.New("identity authority unreachable")

	// ErrInactive indicates that the authority rejected the credential.
	ErrInactive = errors.New("credential inactive")

	// ErrMalformed indicates an answer the gateway could not interpret.
	ErrMalformed = errors.New("malformed verification response")
)

// Request errors.
var (
	// ErrMissingCredential indicates that no bearer credential was sent.
	ErrMissingCredential = errors.New("missing credential")

	// ErrMissingTenant indicates that the tenant query parameter is absent.
	ErrMissingTenant = errors.New("missing tenant")
)

// VerifyError carries the classification of a failed verification along
// with the authority's status code, when one was received.
type VerifyError struct {
	// Kind is ErrUnreachable, ErrInactive or ErrMalformed.
	Kind       error
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *VerifyError) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *VerifyError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func unreachable(status int, cause error) error {
	return &VerifyError{Kind: ErrUnreachable, StatusCode: status, Cause: cause}
}

func inactive(status int, cause error) error {
	return &VerifyError{Kind: ErrInactive, StatusCode: status, Cause: cause}
}

func malformed(status int, cause error) error {
	return &VerifyError{Kind: ErrMalformed, StatusCode: status, Cause: cause}
}

// Kind classifies a failed authorization.
type Kind int

const (
	// KindBadRequest means the request lacked a credential or tenant.
	KindBadRequest Kind = iota + 1

	// KindUnauthorized means the authority rejected the credential or its
	// answer could not be interpreted.
	KindUnauthorized

	// KindUpstreamUnavailable means the authority could not be reached.
	KindUpstreamUnavailable
)

// String returns the metric and log label of the kind.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	default:
		return "unknown"
	}
}

// Client-facing messages. They never carry internal detail.
const (
	MessageMissingCredential = "Missing authorization header"
	MessageMissingTenant     = "Missing tenant parameter"
	MessageUnauthorized      = "Invalid or expired token"
)

// AuthError is the error returned by Gate.Authorize.
type AuthError struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth error (%s): %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Status returns the HTTP status answered to the client. An unreachable
// authority answers 401, like a rejected credential.
func (e *AuthError) Status() int {
	if e.Kind == KindBadRequest {
		return http.StatusBadRequest
	}
	return http.StatusUnauthorized
}

// NewAuthError creates a new AuthError.
func NewAuthError(kind Kind, message string, cause error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of an authorization error, or 0 when err is not
// an AuthError.
func KindOf(err error) Kind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return 0
}

// classify maps a verification error to the gate's error kind.
func classify(err error) *AuthError {
	if errors.Is(err, ErrUnreachable) {
		return NewAuthError(KindUpstreamUnavailable, MessageUnauthorized, err)
	}
	return NewAuthError(KindUnauthorized, MessageUnauthorized, err)
}
