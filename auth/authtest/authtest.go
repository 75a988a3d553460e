// Package authtest provides static authenticators for tests and local
// development.
package authtest

import (
	"context"
	"encoding/json"

	"github.com/storekit/mcp-adapter/auth"
)

// Static maps bearer tokens to user ids. Unknown tokens fail with
// auth.ErrUnauthorized.
type Static struct {
	tokens map[string]string
}

// NewStatic builds a Static authenticator from a token -> userID map.
func NewStatic(tokens map[string]string) *Static {
	cp := make(map[string]string, len(tokens))
	for tok, uid := range tokens {
		cp[tok] = uid
	}
	return &Static{tokens: cp}
}

// CheckAuthentication implements auth.Authenticator.
func (s *Static) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	uid, ok := s.tokens[tok]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return &staticUserInfo{userID: uid}, nil
}

// NoAuth accepts every token and resolves it to a fixed user. Only for
// tests and development environments where authentication is not required.
type NoAuth struct {
	UserID string
}

// NewNoAuth creates a NoAuth authenticator. An empty userID defaults to
// "test-user".
func NewNoAuth(userID string) *NoAuth {
	if userID == "" {
		userID = "test-user"
	}
	return &NoAuth{UserID: userID}
}

// CheckAuthentication implements auth.Authenticator.
func (n *NoAuth) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	return &staticUserInfo{userID: n.UserID}, nil
}

type staticUserInfo struct {
	userID string
	claims map[string]any
}

func (u *staticUserInfo) UserID() string { return u.userID }

func (u *staticUserInfo) Claims(ref any) error {
	if u.claims == nil {
		return nil
	}
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}
