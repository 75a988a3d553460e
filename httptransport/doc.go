// Package httptransport binds the MCP adapter to HTTP: POST carries
// JSON-RPC messages (single or batch), DELETE terminates sessions, GET is
// reserved for a future streaming surface and answers 405.
//
// The handler owns session-header validation and propagation. Apart from
// initialize — the one method allowed to run session-less, because it is
// what creates the session — every message must name a live session in the
// Mcp-Session-Id header. Responses to a successful session-less initialize
// carry the new session id in the same header, set exactly once.
//
// Batch semantics follow JSON-RPC 2.0 as profiled by the adapter: an
// array body always yields an array response (even for one element) on
// HTTP 200, with per-message errors carried inside the array. Only single
// responses map their error code to an HTTP status.
package httptransport
