// Package storetest provides a conformance suite for sessions.Host
// implementations. Backends run the same lifecycle assertions so the
// in-memory and Redis hosts cannot drift apart.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storekit/mcp-adapter/sessions"
)

// HostFactory creates a fresh Host instance for testing. The returned host
// must resolve every non-empty user id except "nobody".
type HostFactory func(t *testing.T) sessions.Host

// RunStoreTests runs the complete session lifecycle suite against stores
// built over the provided factory.
func RunStoreTests(t *testing.T, factory HostFactory) {
	t.Run("CreateAndGetRoundTrip", func(t *testing.T) { testCreateAndGet(t, factory) })
	t.Run("CreateUnknownUserFails", func(t *testing.T) { testCreateUnknownUser(t, factory) })
	t.Run("FIFOEvictionAtCap", func(t *testing.T) { testFIFOEviction(t, factory) })
	t.Run("ExpiryIsLazyAndIdempotent", func(t *testing.T) { testExpiry(t, factory) })
	t.Run("ValidateBumpsActivity", func(t *testing.T) { testValidateBumpsActivity(t, factory) })
	t.Run("DeleteIsIdempotent", func(t *testing.T) { testDeleteIdempotent(t, factory) })
	t.Run("ListAllUnknownUserIsEmpty", func(t *testing.T) { testListAllUnknownUser(t, factory) })
	t.Run("SessionsArePartitionedPerUser", func(t *testing.T) { testUserPartitioning(t, factory) })
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newStore(t *testing.T, factory HostFactory, cfg sessions.Config) (*sessions.Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return sessions.NewStore(factory(t), cfg, sessions.WithClock(clock.Now)), clock
}

func testCreateAndGet(t *testing.T, factory HostFactory) {
	store, _ := newStore(t, factory, sessions.DefaultConfig())
	ctx := context.Background()

	params := map[string]any{"protocolVersion": "2025-06-18", "clientInfo": map[string]any{"name": "conformance"}}
	id, err := store.Create(ctx, "user-1", params)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == "" {
		t.Fatal("Create returned empty session id")
	}

	sess, err := store.Get(ctx, "user-1", id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sess.ID != id {
		t.Errorf("session id: want %q got %q", id, sess.ID)
	}
	if sess.UserID != "user-1" {
		t.Errorf("user id: want %q got %q", "user-1", sess.UserID)
	}
	if sess.CreatedAt == 0 || sess.LastActivity == 0 {
		t.Errorf("timestamps not set: created=%d last=%d", sess.CreatedAt, sess.LastActivity)
	}
	if got := sess.ClientParams["protocolVersion"]; got != "2025-06-18" {
		t.Errorf("client params not stored verbatim: got %v", got)
	}

	if _, err := store.Get(ctx, "user-1", "no-such-session"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Errorf("Get of unknown session: want ErrSessionNotFound, got %v", err)
	}
}

func testCreateUnknownUser(t *testing.T, factory HostFactory) {
	store, _ := newStore(t, factory, sessions.DefaultConfig())

	if _, err := store.Create(context.Background(), "nobody", nil); !errors.Is(err, sessions.ErrUnknownUser) {
		t.Fatalf("Create for unresolvable user: want ErrUnknownUser, got %v", err)
	}
}

func testFIFOEviction(t *testing.T, factory HostFactory) {
	const maxSessions = 3
	cfg := sessions.DefaultConfig()
	cfg.MaxSessionsPerUser = maxSessions
	store, clock := newStore(t, factory, cfg)
	ctx := context.Background()

	ids := make([]string, 0, maxSessions+1)
	for i := 0; i < maxSessions+1; i++ {
		id, err := store.Create(ctx, "user-1", nil)
		if err != nil {
			t.Fatalf("Create #%d failed: %v", i, err)
		}
		ids = append(ids, id)
		clock.Advance(time.Second)
	}

	// The first session must have been evicted by the (N+1)th create.
	if _, err := store.Get(ctx, "user-1", ids[0]); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Errorf("oldest session still retrievable after eviction: err=%v", err)
	}
	for _, id := range ids[1:] {
		if _, err := store.Get(ctx, "user-1", id); err != nil {
			t.Errorf("session %s should survive eviction: %v", id, err)
		}
	}
	if got := len(store.ListAll(ctx, "user-1")); got != maxSessions {
		t.Errorf("session count after eviction: want %d got %d", maxSessions, got)
	}
}

func testExpiry(t *testing.T, factory HostFactory) {
	cfg := sessions.DefaultConfig()
	cfg.InactivityTimeout = time.Hour
	store, clock := newStore(t, factory, cfg)
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	clock.Advance(time.Hour + time.Second)

	if _, err := store.Get(ctx, "user-1", id); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Errorf("expired session via Get: want ErrSessionNotFound, got %v", err)
	}
	if store.Validate(ctx, "user-1", id) {
		t.Error("expired session validated")
	}
	// Expiry discovery implies cleanup: nothing further to remove.
	if n := store.CleanupExpired(ctx, "user-1"); n != 0 {
		t.Errorf("CleanupExpired after lazy purge: want 0 removed, got %d", n)
	}
}

func testValidateBumpsActivity(t *testing.T, factory HostFactory) {
	cfg := sessions.DefaultConfig()
	cfg.InactivityTimeout = time.Hour
	store, clock := newStore(t, factory, cfg)
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Keep touching the session just inside the window; the bump must keep
	// it alive well past the original deadline.
	for i := 0; i < 3; i++ {
		clock.Advance(45 * time.Minute)
		if !store.Validate(ctx, "user-1", id) {
			t.Fatalf("Validate #%d failed for live session", i)
		}
	}

	sess, err := store.Get(ctx, "user-1", id)
	if err != nil {
		t.Fatalf("Get after validates failed: %v", err)
	}
	if sess.LastActivity != clock.Now().Unix() {
		t.Errorf("last activity: want %d got %d", clock.Now().Unix(), sess.LastActivity)
	}

	if store.Validate(ctx, "user-1", "no-such-session") {
		t.Error("Validate of unknown session returned true")
	}
	if store.Validate(ctx, "", "") {
		t.Error("Validate of empty inputs returned true")
	}
}

func testDeleteIdempotent(t *testing.T, factory HostFactory) {
	store, _ := newStore(t, factory, sessions.DefaultConfig())
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !store.Delete(ctx, "user-1", id) {
		t.Error("first Delete: want true")
	}
	if store.Delete(ctx, "user-1", id) {
		t.Error("second Delete: want false")
	}
	if store.Delete(ctx, "user-1", "never-existed") {
		t.Error("Delete of unknown session: want false")
	}
}

func testListAllUnknownUser(t *testing.T, factory HostFactory) {
	store, _ := newStore(t, factory, sessions.DefaultConfig())

	agg := store.ListAll(context.Background(), "user-without-sessions")
	if agg == nil {
		t.Fatal("ListAll returned nil map")
	}
	if len(agg) != 0 {
		t.Errorf("ListAll for unknown user: want empty, got %d entries", len(agg))
	}
}

func testUserPartitioning(t *testing.T, factory HostFactory) {
	store, _ := newStore(t, factory, sessions.DefaultConfig())
	ctx := context.Background()

	idA, err := store.Create(ctx, "user-a", nil)
	if err != nil {
		t.Fatalf("Create for user-a failed: %v", err)
	}
	idB, err := store.Create(ctx, "user-b", nil)
	if err != nil {
		t.Fatalf("Create for user-b failed: %v", err)
	}

	// A session belongs to exactly one user.
	if _, err := store.Get(ctx, "user-b", idA); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Errorf("cross-user Get: want ErrSessionNotFound, got %v", err)
	}
	if store.Validate(ctx, "user-a", idB) {
		t.Error("cross-user Validate returned true")
	}
	if store.Delete(ctx, "user-b", idA) {
		t.Error("cross-user Delete returned true")
	}
	if _, err := store.Get(ctx, "user-a", idA); err != nil {
		t.Errorf("session damaged by cross-user probes: %v", err)
	}
}
