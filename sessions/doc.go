// Package sessions implements the session lifecycle of the MCP adapter:
// creation on initialize, activity-based expiry, FIFO eviction under the
// per-user cap, and explicit termination.
//
// All sessions belonging to a user are persisted as one aggregate record in
// the backing attribute store. The Host port therefore demands an atomic
// read-modify-write primitive per user key; two requests racing on the same
// user's aggregate must serialize inside the backend (mutex, WATCH/MULTI,
// versioned row). The Store itself takes no locks.
package sessions
