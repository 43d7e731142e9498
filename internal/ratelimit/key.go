package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// KeyFunc extracts the rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// ClientIPKeyFunc keys requests by client address. Forwarding headers are
// honored only when trustProxyHeaders is set; otherwise a client could pick
// its own key.
func ClientIPKeyFunc(trustProxyHeaders bool) KeyFunc {
	return func(r *http.Request) string {
		return ClientIP(r, trustProxyHeaders)
	}
}

// ClientIP extracts the client IP from the request.
func ClientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return host
}
