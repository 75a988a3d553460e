package jsonrpc

import "net/http"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request
	// object, or a required transport precondition (such as the session
	// header) was missing.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not
	// available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters, including
	// missing or expired sessions.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
	// ErrorCodeUnauthorized indicates the request lacked a resolvable
	// authenticated principal. Implementation-defined extension code.
	ErrorCodeUnauthorized ErrorCode = -32001
)

// HTTPStatus maps a JSON-RPC error code to the HTTP status used for single
// (non-batch) error responses. Batches are always carried on HTTP 200; the
// transport consults this mapping only when exactly one envelope is
// returned and it carries an error.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrorCodeParseError, ErrorCodeInvalidRequest, ErrorCodeInvalidParams:
		return http.StatusBadRequest
	case ErrorCodeMethodNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
