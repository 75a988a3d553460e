package jwtauth

import (
	"context"
	"errors"
)

// NewStatic constructs an Authenticator validating tokens against a fixed
// JWKS URI, skipping discovery. Useful when the authorization server does
// not publish an OIDC discovery document.
func NewStatic(ctx context.Context, cfg *Config, jwksURI string) (*Authenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if len(cfg.ExpectedAudiences) == 0 {
		return nil, errors.New("at least one expected audience is required")
	}
	if jwksURI == "" {
		return nil, errors.New("jwks uri is required")
	}
	return newWithJWKS(ctx, cfg, jwksURI)
}
