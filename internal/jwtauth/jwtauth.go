// Package jwtauth provides JWT-based auth.Authenticator implementations:
// one configured from OIDC discovery and one from a static JWKS URI. Both
// validate RFC 9068 access tokens and resolve the subject claim to the
// adapter's user id.
package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/storekit/mcp-adapter/auth"
)

// Config controls token validation policy.
type Config struct {
	Issuer string
	// ExpectedAudiences lists the accepted aud values; a token must carry at
	// least one of them.
	ExpectedAudiences []string
	RequiredScopes    []string
	// ScopeModeAny accepts a token carrying any one of RequiredScopes;
	// otherwise all of them are required.
	ScopeModeAny bool
	AllowedAlgs  []string
	Leeway       time.Duration
}

// DefaultConfig returns a Config with the default algorithm and leeway.
func DefaultConfig() *Config {
	return &Config{
		AllowedAlgs: []string{"RS256"},
		Leeway:      60 * time.Second,
	}
}

type userInfo struct {
	sub    string
	claims jwt.MapClaims
}

func (u *userInfo) UserID() string { return u.sub }

func (u *userInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// Authenticator validates JWT bearer tokens against a JWKS key set.
type Authenticator struct {
	cfg     *Config
	keyfunc jwt.Keyfunc
}

var _ auth.Authenticator = (*Authenticator)(nil)

// NewFromDiscovery resolves the issuer's OIDC discovery document, pulls its
// jwks_uri and returns an Authenticator with auto-refreshing keys.
func NewFromDiscovery(ctx context.Context, cfg *Config) (*Authenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery metadata carries no jwks_uri")
	}

	return newWithJWKS(ctx, cfg, meta.JwksURI)
}

func newWithJWKS(ctx context.Context, cfg *Config, jwksURI string) (*Authenticator, error) {
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 60 * time.Second
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	return &Authenticator{
		cfg: cfg,
		keyfunc: func(t *jwt.Token) (any, error) {
			alg := t.Method.Alg()
			for _, allowed := range cfg.AllowedAlgs {
				if alg == allowed {
					return kf.Keyfunc(t)
				}
			}
			return nil, fmt.Errorf("disallowed alg: %s", alg)
		},
	}, nil
}

// CheckAuthentication implements auth.Authenticator. Signature, issuer,
// audience, expiry and scope policy are all enforced here; failures surface
// as auth.ErrUnauthorized or auth.ErrInsufficientScope.
func (a *Authenticator) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", auth.ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(a.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.cfg.Leeway),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	parsed, err := parser.Parse(tok, a.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token verification failed: %v", auth.ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims shape", auth.ErrUnauthorized)
	}

	if len(a.cfg.ExpectedAudiences) > 0 && !audIntersects(claims["aud"], a.cfg.ExpectedAudiences) {
		return nil, fmt.Errorf("%w: audience mismatch", auth.ErrUnauthorized)
	}

	if err := a.checkScopes(claims); err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub claim", auth.ErrUnauthorized)
	}

	return &userInfo{sub: sub, claims: claims}, nil
}

func (a *Authenticator) checkScopes(claims jwt.MapClaims) error {
	if len(a.cfg.RequiredScopes) == 0 {
		return nil
	}

	scopeStr, _ := claims["scope"].(string)
	have := map[string]bool{}
	for _, s := range strings.Fields(scopeStr) {
		have[s] = true
	}

	if a.cfg.ScopeModeAny {
		for _, want := range a.cfg.RequiredScopes {
			if have[want] {
				return nil
			}
		}
		return auth.ErrInsufficientScope
	}
	for _, want := range a.cfg.RequiredScopes {
		if !have[want] {
			return auth.ErrInsufficientScope
		}
	}
	return nil
}

// audIntersects reports whether the aud claim (string or array) contains any
// of the wanted audiences.
func audIntersects(aud any, wants []string) bool {
	wantSet := make(map[string]struct{}, len(wants))
	for _, w := range wants {
		wantSet[w] = struct{}{}
	}
	switch v := aud.(type) {
	case string:
		_, ok := wantSet[v]
		return ok
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				if _, hit := wantSet[s]; hit {
					return true
				}
			}
		}
	case []string:
		for _, s := range v {
			if _, hit := wantSet[s]; hit {
				return true
			}
		}
	}
	return false
}
