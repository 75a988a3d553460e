package jwtauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/storekit/mcp-adapter/auth"
)

const testAudience = "https://api.example.com/mcp"

type signer struct {
	key *rsa.PrivateKey
	kid string
}

func newSigner(t *testing.T) (*signer, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	kid := "test-key"
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{{Key: &key.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}}}
	jwks, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return &signer{key: key, kid: kid}, jwks
}

func (s *signer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	tok.Header["typ"] = "at+jwt"
	signed, err := tok.SignedString(s.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func serveJWKS(t *testing.T, jwks []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAuthenticator(t *testing.T, jwks []byte, mutate func(cfg *Config)) *Authenticator {
	t.Helper()
	srv := serveJWKS(t, jwks)

	cfg := DefaultConfig()
	cfg.Issuer = "https://issuer.example.com"
	cfg.ExpectedAudiences = []string{testAudience}
	cfg.Leeway = 0
	if mutate != nil {
		mutate(cfg)
	}

	a, err := NewStatic(context.Background(), cfg, srv.URL)
	if err != nil {
		t.Fatalf("NewStatic() error = %v", err)
	}
	return a
}

func baseClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": "https://issuer.example.com",
		"sub": "user-123",
		"aud": testAudience,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
}

func TestCheckAuthenticationResolvesSubject(t *testing.T) {
	s, jwks := newSigner(t)
	a := newAuthenticator(t, jwks, nil)

	claims := baseClaims()
	claims["scope"] = "catalog:read catalog:write"

	ui, err := a.CheckAuthentication(context.Background(), s.sign(t, claims))
	if err != nil {
		t.Fatalf("CheckAuthentication() error = %v", err)
	}
	if got := ui.UserID(); got != "user-123" {
		t.Errorf("UserID() = %q, want %q", got, "user-123")
	}

	var out struct {
		Scope string `json:"scope"`
	}
	if err := ui.Claims(&out); err != nil {
		t.Fatalf("Claims() error = %v", err)
	}
	if out.Scope != "catalog:read catalog:write" {
		t.Errorf("scope = %q, want %q", out.Scope, "catalog:read catalog:write")
	}
}

func TestAudienceArrayIsAccepted(t *testing.T) {
	s, jwks := newSigner(t)
	a := newAuthenticator(t, jwks, nil)

	claims := baseClaims()
	claims["aud"] = []string{"https://other.example.com", testAudience}

	if _, err := a.CheckAuthentication(context.Background(), s.sign(t, claims)); err != nil {
		t.Fatalf("CheckAuthentication() error = %v", err)
	}
}

func TestUnknownAudienceIsUnauthorized(t *testing.T) {
	s, jwks := newSigner(t)
	a := newAuthenticator(t, jwks, nil)

	claims := baseClaims()
	claims["aud"] = "https://unknown.example.com"

	_, err := a.CheckAuthentication(context.Background(), s.sign(t, claims))
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("error = %v, want auth.ErrUnauthorized", err)
	}
}

func TestIssuerMismatchIsUnauthorized(t *testing.T) {
	s, jwks := newSigner(t)
	a := newAuthenticator(t, jwks, nil)

	claims := baseClaims()
	claims["iss"] = "https://evil.example.com"

	_, err := a.CheckAuthentication(context.Background(), s.sign(t, claims))
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("error = %v, want auth.ErrUnauthorized", err)
	}
}

func TestExpiredTokenIsUnauthorized(t *testing.T) {
	s, jwks := newSigner(t)
	a := newAuthenticator(t, jwks, nil)

	claims := baseClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()

	_, err := a.CheckAuthentication(context.Background(), s.sign(t, claims))
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("error = %v, want auth.ErrUnauthorized", err)
	}
}

func TestMissingSubjectIsUnauthorized(t *testing.T) {
	s, jwks := newSigner(t)
	a := newAuthenticator(t, jwks, nil)

	claims := baseClaims()
	delete(claims, "sub")

	_, err := a.CheckAuthentication(context.Background(), s.sign(t, claims))
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("error = %v, want auth.ErrUnauthorized", err)
	}
}

func TestAllRequiredScopesAreEnforced(t *testing.T) {
	s, jwks := newSigner(t)
	a := newAuthenticator(t, jwks, func(cfg *Config) {
		cfg.RequiredScopes = []string{"catalog:write", "catalog:admin"}
	})

	claims := baseClaims()
	claims["scope"] = "catalog:write"

	_, err := a.CheckAuthentication(context.Background(), s.sign(t, claims))
	if !errors.Is(err, auth.ErrInsufficientScope) {
		t.Fatalf("error = %v, want auth.ErrInsufficientScope", err)
	}
}

func TestScopeModeAnyAcceptsOneMatch(t *testing.T) {
	s, jwks := newSigner(t)
	a := newAuthenticator(t, jwks, func(cfg *Config) {
		cfg.RequiredScopes = []string{"catalog:write", "catalog:admin"}
		cfg.ScopeModeAny = true
	})

	claims := baseClaims()
	claims["scope"] = "catalog:write"

	if _, err := a.CheckAuthentication(context.Background(), s.sign(t, claims)); err != nil {
		t.Fatalf("CheckAuthentication() error = %v", err)
	}
}

func TestDiscoveryResolvesJWKS(t *testing.T) {
	s, jwks := newSigner(t)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"jwks_uri":               srv.URL + "/keys",
			"authorization_endpoint": srv.URL + "/oauth2/auth",
			"token_endpoint":         srv.URL + "/oauth2/token",
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	})

	cfg := DefaultConfig()
	cfg.Issuer = srv.URL
	cfg.ExpectedAudiences = []string{testAudience}
	cfg.Leeway = 0

	a, err := NewFromDiscovery(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewFromDiscovery() error = %v", err)
	}

	claims := baseClaims()
	claims["iss"] = srv.URL

	ui, err := a.CheckAuthentication(context.Background(), s.sign(t, claims))
	if err != nil {
		t.Fatalf("CheckAuthentication() error = %v", err)
	}
	if got := ui.UserID(); got != "user-123" {
		t.Errorf("UserID() = %q, want %q", got, "user-123")
	}
}
