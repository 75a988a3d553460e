// Package memstore provides an in-process sessions.Host for single-node
// deployments and tests. The per-user atomic read-modify-write requirement
// is met with a process-wide mutex around the aggregate maps.
package memstore

import (
	"context"
	"sync"

	"github.com/storekit/mcp-adapter/sessions"
)

// Option configures a Host.
type Option func(*Host)

// WithUserResolver installs a principal-resolution callback consulted by
// UserExists. Without one, any non-empty user id resolves.
func WithUserResolver(fn func(ctx context.Context, userID string) (bool, error)) Option {
	return func(h *Host) { h.resolveUser = fn }
}

// Host keeps each user's session aggregate in memory.
type Host struct {
	mu          sync.Mutex
	users       map[string]map[string]*sessions.Session
	resolveUser func(ctx context.Context, userID string) (bool, error)
}

var _ sessions.Host = (*Host)(nil)

// New constructs an empty in-memory Host.
func New(opts ...Option) *Host {
	h := &Host{users: make(map[string]map[string]*sessions.Session)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Host) UserExists(ctx context.Context, userID string) (bool, error) {
	if h.resolveUser != nil {
		return h.resolveUser(ctx, userID)
	}
	return userID != "", nil
}

func (h *Host) Load(ctx context.Context, userID string) (map[string]*sessions.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return copyAggregate(h.users[userID]), nil
}

func (h *Host) Update(ctx context.Context, userID string, mutate func(agg map[string]*sessions.Session) (bool, error)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	agg := copyAggregate(h.users[userID])
	changed, err := mutate(agg)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if len(agg) == 0 {
		delete(h.users, userID)
		return nil
	}
	h.users[userID] = agg
	return nil
}

// copyAggregate deep-copies a user's aggregate so callers never alias the
// stored records.
func copyAggregate(src map[string]*sessions.Session) map[string]*sessions.Session {
	dst := make(map[string]*sessions.Session, len(src))
	for id, sess := range src {
		cp := *sess
		dst[id] = &cp
	}
	return dst
}
