package middleware

// HTTP header constants.
const (
	// HeaderRequestID carries the request ID in both directions.
	HeaderRequestID = "X-Request-ID"

	// HeaderRetryAfter is the Retry-After header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderRateLimitLimit is the window quota header name.
	HeaderRateLimitLimit = "X-RateLimit-Limit"

	// HeaderRateLimitRemaining is the remaining quota header name.
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"

	// HeaderRateLimitReset is the window reset header name (unix seconds).
	HeaderRateLimitReset = "X-RateLimit-Reset"
)

// gin context keys.
const (
	// RequestIDKey is the context key for request ID.
	RequestIDKey = "requestID"

	// RouteKey is the context key for the matched route name.
	RouteKey = "route"

	// SpanKey is the context key for the server span.
	SpanKey = "otel-span"
)

// Fixed client-facing messages.
const (
	// MessageRateLimited answers a rejected request.
	MessageRateLimited = "Too many requests, please try again later."

	// MessageInternal answers a recovered panic.
	MessageInternal = "An unexpected error occurred"

	// MessageBodyTooLarge answers an oversized request body.
	MessageBodyTooLarge = "Request body too large"
)
