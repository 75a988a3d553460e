package httptransport

import (
	"encoding/json"
	"net/http"
)

// requestContext captures the transport-relevant parts of one inbound HTTP
// call. It is ephemeral, owned exclusively by the handling of that call.
type requestContext struct {
	sessionID string
	// body is the decoded JSON payload of a POST. nil means absent or
	// malformed; the distinction surfaces downstream as a parse error,
	// never as a transport fault.
	body json.RawMessage
	// wasArray records whether the raw body was a JSON array. The response
	// shape mirrors it: array in, array out, even for empty or
	// single-element arrays.
	wasArray bool
}

func newRequestContext(r *http.Request) *requestContext {
	rc := &requestContext{
		sessionID: r.Header.Get(mcpSessionIDHeader),
	}

	if r.Method == http.MethodPost && r.Body != nil {
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err == nil {
			rc.body = raw
			rc.wasArray = len(raw) > 0 && raw[0] == '['
		}
	}

	return rc
}
