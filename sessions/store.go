package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Store implements the session lifecycle over a Host backend. All
// operations are keyed by (userID, sessionID); cross-user isolation comes
// from the per-user aggregate layout, so the Store holds no locks of its
// own.
type Store struct {
	host Host
	cfg  Config
	now  func() time.Time
}

// NewStore builds a Store over the given Host. A zero-valued field in cfg
// falls back to its default.
func NewStore(host Host, cfg Config, opts ...StoreOption) *Store {
	if cfg.MaxSessionsPerUser <= 0 {
		cfg.MaxSessionsPerUser = DefaultConfig().MaxSessionsPerUser
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DefaultConfig().InactivityTimeout
	}
	s := &Store{host: host, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new session for the user and returns its id. Expired
// sessions are purged first; if the user is at the concurrent-session cap
// the oldest session by creation time is evicted before inserting.
func (s *Store) Create(ctx context.Context, userID string, clientParams map[string]any) (string, error) {
	ok, err := s.host.UserExists(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolve user: %w", err)
	}
	if !ok {
		return "", ErrUnknownUser
	}

	now := s.now()
	sessID := uuid.NewString()

	err = s.host.Update(ctx, userID, func(agg map[string]*Session) (bool, error) {
		dropExpired(agg, now, s.cfg.InactivityTimeout)
		for len(agg) >= s.cfg.MaxSessionsPerUser {
			if oldest := oldestSessionID(agg); oldest != "" {
				delete(agg, oldest)
			} else {
				break
			}
		}
		agg[sessID] = &Session{
			CreatedAt:    now.Unix(),
			LastActivity: now.Unix(),
			ClientParams: clientParams,
		}
		return true, nil
	})
	if err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}
	return sessID, nil
}

// Get returns the session, or ErrSessionNotFound if it is absent or has
// expired. Discovering an expired record deletes it as a side effect.
func (s *Store) Get(ctx context.Context, userID, sessionID string) (*Session, error) {
	if userID == "" || sessionID == "" {
		return nil, ErrSessionNotFound
	}

	agg, err := s.host.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	sess, ok := agg[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.expiredAt(s.now(), s.cfg.InactivityTimeout) {
		_ = s.host.Update(ctx, userID, func(agg map[string]*Session) (bool, error) {
			if _, ok := agg[sessionID]; !ok {
				return false, nil
			}
			delete(agg, sessionID)
			return true, nil
		})
		return nil, ErrSessionNotFound
	}

	sess.ID = sessionID
	sess.UserID = userID
	return sess, nil
}

// Validate reports whether the session is live, bumping its last-activity
// timestamp when it is. It never returns an error: any missing, expired or
// invalid-input case is false.
func (s *Store) Validate(ctx context.Context, userID, sessionID string) bool {
	if userID == "" || sessionID == "" {
		return false
	}

	now := s.now()
	valid := false
	err := s.host.Update(ctx, userID, func(agg map[string]*Session) (bool, error) {
		changed := dropExpired(agg, now, s.cfg.InactivityTimeout) > 0
		sess, ok := agg[sessionID]
		if !ok {
			return changed, nil
		}
		sess.LastActivity = now.Unix()
		valid = true
		return true, nil
	})
	if err != nil {
		return false
	}
	return valid
}

// Delete removes the session. It is idempotent and reports whether a
// record was actually removed.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) bool {
	if userID == "" || sessionID == "" {
		return false
	}

	removed := false
	err := s.host.Update(ctx, userID, func(agg map[string]*Session) (bool, error) {
		if _, ok := agg[sessionID]; !ok {
			return false, nil
		}
		delete(agg, sessionID)
		removed = true
		return true, nil
	})
	if err != nil {
		return false
	}
	return removed
}

// CleanupExpired removes every expired session for the user and returns
// the removed count. Safe to call frequently; cost is proportional to the
// user's session count.
func (s *Store) CleanupExpired(ctx context.Context, userID string) int {
	now := s.now()
	removed := 0
	err := s.host.Update(ctx, userID, func(agg map[string]*Session) (bool, error) {
		removed = dropExpired(agg, now, s.cfg.InactivityTimeout)
		return removed > 0, nil
	})
	if err != nil {
		return 0
	}
	return removed
}

// ListAll returns the raw session aggregate for the user, expired records
// included. Unknown users yield an empty map, never an error.
func (s *Store) ListAll(ctx context.Context, userID string) map[string]*Session {
	agg, err := s.host.Load(ctx, userID)
	if err != nil {
		return map[string]*Session{}
	}
	for id, sess := range agg {
		sess.ID = id
		sess.UserID = userID
	}
	return agg
}

// InactivityTimeout exposes the configured expiry window.
func (s *Store) InactivityTimeout() time.Duration {
	return s.cfg.InactivityTimeout
}

func dropExpired(agg map[string]*Session, now time.Time, timeout time.Duration) int {
	removed := 0
	for id, sess := range agg {
		if sess.expiredAt(now, timeout) {
			delete(agg, id)
			removed++
		}
	}
	return removed
}

func oldestSessionID(agg map[string]*Session) string {
	oldestID := ""
	var oldestAt int64
	for id, sess := range agg {
		if oldestID == "" || sess.CreatedAt < oldestAt {
			oldestID = id
			oldestAt = sess.CreatedAt
		}
	}
	return oldestID
}
