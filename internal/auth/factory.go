package auth

import (
	"fmt"

	"github.com/vyrodovalexey/bifrost/internal/config"
)

// NewVerifier creates the verifier selected by cfg.Mode. clientSecret is
// the resolved introspection client secret; it is ignored in service mode.
func NewVerifier(cfg *config.IdentityConfig, clientSecret string, opts ...VerifierOption) (Verifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("identity configuration is required")
	}

	opts = append([]VerifierOption{WithTimeout(cfg.Timeout.Duration())}, opts...)

	switch cfg.Mode {
	case config.IdentityModeService, "":
		return NewServiceVerifier(cfg.AuthURL, opts...)
	case config.IdentityModeIntrospection:
		secret := clientSecret
		if secret == "" {
			secret = cfg.ClientSecret
		}
		return NewIntrospectionVerifier(cfg.IssuerURL, cfg.ClientID, secret, opts...)
	default:
		return nil, fmt.Errorf("unknown identity mode %q", cfg.Mode)
	}
}
