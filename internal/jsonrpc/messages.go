package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// Request represents a JSON-RPC request (with an ID) or notification
// (without ID).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// IsNotification reports whether the request carries no ID and therefore
// expects no response entry.
func (r *Request) IsNotification() bool {
	return r.ID.IsNil()
}

// Response represents a JSON-RPC response: exactly one of Result or Error
// is set.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewResultResponse builds a successful JSON-RPC response. The result is
// coerced to a JSON object: maps, structs and nil pass through (nil becomes
// the empty object), while scalars and arrays are wrapped as
// {"value": <result>}. The adapter's protocol surface always returns
// object-shaped results.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	coerced, err := coerceResultObject(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Result:         coerced,
		ID:             id,
	}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// NewErrorResponseFrom builds an error response carrying a pre-built error
// object verbatim.
func NewErrorResponseFrom(id *RequestID, e *Error) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          e,
		ID:             id,
	}
}

func coerceResultObject(result any) (json.RawMessage, error) {
	if result == nil {
		return json.RawMessage(`{}`), nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if len(b) > 0 && b[0] == '{' {
		return b, nil
	}
	wrapped, err := json.Marshal(map[string]json.RawMessage{"value": b})
	if err != nil {
		return nil, err
	}
	return wrapped, nil
}

// ParseRequest decodes and validates a single JSON-RPC request envelope.
// It enforces the version marker and a non-empty method; response-shaped
// messages and structurally invalid envelopes are rejected.
func ParseRequest(raw json.RawMessage) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON-RPC message: %w", err)
	}
	if req.JSONRPCVersion != ProtocolVersion {
		return nil, fmt.Errorf("invalid JSON-RPC version: expected %q, got %q", ProtocolVersion, req.JSONRPCVersion)
	}
	if req.Method == "" {
		return nil, fmt.Errorf("missing method")
	}
	return &req, nil
}
