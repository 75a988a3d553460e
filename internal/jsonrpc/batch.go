package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IsBatch reports whether the decoded body is a JSON array with at least
// one element. An empty array is not considered a batch: it carries no
// messages to process and round-trips as an empty response array at the
// transport layer rather than producing an error.
func IsBatch(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return false
	}
	return len(elems) > 0
}

// Normalize turns a request body into an ordered message list: a single
// object becomes a one-element list, an array passes through unchanged
// (an empty array yields an empty list).
func Normalize(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	if trimmed[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, fmt.Errorf("invalid batch: %w", err)
		}
		return elems, nil
	}
	return []json.RawMessage{trimmed}, nil
}

// Process applies fn to every message in array order, dropping nil results
// (notifications). The return value is one of:
//
//   - []*Response when isBatch is true — always an array, even for a
//     single surviving response, and possibly empty;
//   - *Response when isBatch is false and one response was produced;
//   - nil when isBatch is false and every message was a notification.
func Process(msgs []json.RawMessage, isBatch bool, fn func(json.RawMessage) *Response) any {
	responses := make([]*Response, 0, len(msgs))
	for _, msg := range msgs {
		if res := fn(msg); res != nil {
			responses = append(responses, res)
		}
	}

	if isBatch {
		return responses
	}
	if len(responses) == 0 {
		return nil
	}
	return responses[0]
}
