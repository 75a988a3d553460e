package router

// Context carries the transport-side state of one HTTP call into the
// router: the authenticated principal, the inbound session id (empty for
// session-less initialize), and the stash for a session created while the
// call was being handled.
//
// The stash is set-once per Context. Because a Context lives exactly as
// long as one HTTP response, this replaces any process-wide guard around
// session-header registration: batch processing can hit the initialize
// path repeatedly without attaching the header twice.
type Context struct {
	// Transport names the binding for observability ("http").
	Transport string
	// UserID is the authenticated principal.
	UserID string
	// SessionID is the inbound session id, empty when the request carried
	// no session header.
	SessionID string

	newSessionID string
	stashed      bool
}

// StashNewSession records the id of a session created during this call.
// It reports false, without overwriting, if a session id was already
// stashed.
func (c *Context) StashNewSession(id string) bool {
	if c.stashed {
		return false
	}
	c.newSessionID = id
	c.stashed = true
	return true
}

// NewSessionID returns the stashed session id, or "" when no session was
// created during this call.
func (c *Context) NewSessionID() string {
	return c.newSessionID
}
