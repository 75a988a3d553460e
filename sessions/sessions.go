package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/joeshaw/envdecode"
)

var (
	// ErrUnknownUser indicates the user id does not resolve to a real
	// principal.
	ErrUnknownUser = errors.New("unknown user")
	// ErrSessionNotFound indicates the session is absent or has expired.
	ErrSessionNotFound = errors.New("session not found")
)

// Session is one authenticated client's logical connection. Timestamps are
// epoch seconds so the record survives any JSON-capable attribute store.
type Session struct {
	ID           string         `json:"-"`
	UserID       string         `json:"-"`
	CreatedAt    int64          `json:"created_at"`
	LastActivity int64          `json:"last_activity"`
	ClientParams map[string]any `json:"client_params,omitempty"`
}

// expiredAt reports whether the session's inactivity window has elapsed.
func (s *Session) expiredAt(now time.Time, timeout time.Duration) bool {
	return time.Unix(s.LastActivity, 0).Add(timeout).Before(now)
}

// Config controls session lifecycle limits. Fields can be populated from
// the environment via FromEnv.
type Config struct {
	// MaxSessionsPerUser is the FIFO eviction threshold. ENV: MCP_MAX_SESSIONS_PER_USER
	MaxSessionsPerUser int `env:"MCP_MAX_SESSIONS_PER_USER,default=32"`
	// InactivityTimeout is the expiry window. ENV: MCP_SESSION_INACTIVITY_TIMEOUT
	InactivityTimeout time.Duration `env:"MCP_SESSION_INACTIVITY_TIMEOUT,default=24h"`
}

// DefaultConfig returns the documented defaults: 32 sessions per user,
// 24 hour inactivity window.
func DefaultConfig() Config {
	return Config{MaxSessionsPerUser: 32, InactivityTimeout: 24 * time.Hour}
}

// FromEnv populates a Config from the environment using envdecode,
// falling back to the tag defaults.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Host is the storage port behind the Store. Implementations persist one
// aggregate record per user (session id -> Session) and MUST make Update's
// read-modify-write atomic per user key: concurrent updates to the same
// user's aggregate must not lose writes. CAS with retry or an equivalent
// per-key critical section are both acceptable.
type Host interface {
	// UserExists reports whether the user id resolves to a real principal.
	UserExists(ctx context.Context, userID string) (bool, error)

	// Load returns a copy of the user's session aggregate. Unknown users
	// yield an empty, non-nil map.
	Load(ctx context.Context, userID string) (map[string]*Session, error)

	// Update atomically applies mutate to the user's aggregate and persists
	// the outcome when mutate reports a change. mutate may be invoked more
	// than once under optimistic concurrency; it must be side-effect free
	// beyond the map it is handed.
	Update(ctx context.Context, userID string, mutate func(agg map[string]*Session) (changed bool, err error)) error
}
