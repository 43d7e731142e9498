package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// credentialSeparator splits a composite "clientSecret|accessToken"
// credential, the format the auth service's verifyToken endpoint accepts.
const credentialSeparator = "|"

// IntrospectionVerifier calls the OIDC token introspection endpoint
// (RFC 7662) of the tenant's realm directly:
//
//	POST {issuerURL}/realms/{tenant}/protocol/openid-connect/token/introspect
//	token={token}&client_id={clientID}&client_secret={secret}
//
// A composite "secret|token" credential supplies its own client secret;
// otherwise the configured one is used.
type IntrospectionVerifier struct {
	httpVerifier
	issuer       *url.URL
	clientID     string
	clientSecret string
}

// NewIntrospectionVerifier creates an introspection verifier.
func NewIntrospectionVerifier(
	issuerURL, clientID, clientSecret string,
	opts ...VerifierOption,
) (*IntrospectionVerifier, error) {
	issuer, err := parseBaseURL(issuerURL)
	if err != nil {
		return nil, err
	}
	if clientID == "" {
		return nil, errors.New("introspection requires a client ID")
	}

	return &IntrospectionVerifier{
		httpVerifier: newHTTPVerifier("introspection", opts),
		issuer:       issuer,
		clientID:     clientID,
		clientSecret: clientSecret,
	}, nil
}

// Verify implements Verifier.
func (v *IntrospectionVerifier) Verify(ctx context.Context, credential, tenant string) (*VerificationResult, error) {
	secret, token := v.splitCredential(credential)

	return v.do(ctx, credential, tenant, func(ctx context.Context) (*http.Request, error) {
		if token == "" {
			return nil, errors.New("credential carries no token")
		}

		form := url.Values{}
		form.Set("token", token)
		form.Set("token_type_hint", "access_token")
		form.Set("client_id", v.clientID)
		if secret != "" {
			form.Set("client_secret", secret)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			v.endpoint(tenant), strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
}

func (v *IntrospectionVerifier) endpoint(tenant string) string {
	u := *v.issuer
	u.Path = strings.TrimSuffix(u.Path, "/") +
		"/realms/" + url.PathEscape(tenant) + "/protocol/openid-connect/token/introspect"
	return u.String()
}

func (v *IntrospectionVerifier) splitCredential(credential string) (secret, token string) {
	if s, t, ok := strings.Cut(credential, credentialSeparator); ok {
		return s, t
	}
	return v.clientSecret, credential
}

// accessToken returns the token part of a possibly composite credential.
func accessToken(credential string) string {
	if i := strings.LastIndex(credential, credentialSeparator); i >= 0 {
		return credential[i+len(credentialSeparator):]
	}
	return credential
}
