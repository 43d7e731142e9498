package auth

import (
	"net/http"
	"strings"
)

// TenantParam is the query parameter naming the tenant.
const TenantParam = "tenant"

const bearerPrefix = "bearer "

// Credentials are the authentication inputs of a request.
type Credentials struct {
	Credential string
	Tenant     string
}

// Extract reads the bearer credential and the tenant from r. Missing
// values are returned empty; the gate rejects them.
func Extract(r *http.Request) Credentials {
	return Credentials{
		Credential: ExtractCredential(r),
		Tenant:     strings.TrimSpace(r.URL.Query().Get(TenantParam)),
	}
}

// ExtractCredential returns the credential of an
// "Authorization: Bearer <credential>" header. The scheme is matched case
// insensitively; anything else yields "".
func ExtractCredential(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}
