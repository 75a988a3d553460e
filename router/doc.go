// Package router dispatches decoded JSON-RPC requests to MCP capability
// handlers. It owns the method table, request instrumentation, panic
// containment, and the initialize-time session creation side effect; the
// capability handlers themselves are collaborators injected at
// construction.
package router
