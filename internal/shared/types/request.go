package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyRequest     = errors.New("request is empty")
	ErrRequestNotObject = errors.New("request must be a JSON object")
)

// TransactionRequest is a caller's request as it travels through the bridge.
// Fields other than requestId and blockchainId are opaque and forwarded
// untouched.
type TransactionRequest struct {
	RequestID    string
	BlockchainID string

	fields map[string]json.RawMessage
}

// ParseTransactionRequest decodes a request object. A missing blockchainId
// is not an error here; the router decides what an unscoped request means.
func ParseTransactionRequest(raw string) (*TransactionRequest, error) {
	if raw == "" {
		return nil, ErrEmptyRequest
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestNotObject, err)
	}
	if fields == nil {
		return nil, ErrRequestNotObject
	}

	req := &TransactionRequest{fields: fields}
	var err error
	if req.RequestID, err = stringField(fields, "requestId"); err != nil {
		return nil, err
	}
	if req.BlockchainID, err = stringField(fields, "blockchainId"); err != nil {
		return nil, err
	}
	return req, nil
}

// EnsureRequestID injects a generated requestId when the caller sent none.
// Reports whether an id was injected.
func (r *TransactionRequest) EnsureRequestID(generate func() string) bool {
	if r.RequestID != "" {
		return false
	}
	r.RequestID = generate()
	encoded, _ := json.Marshal(r.RequestID)
	r.fields["requestId"] = encoded
	return true
}

// Payload returns the opaque payload member, or nil when absent
func (r *TransactionRequest) Payload() json.RawMessage {
	return r.fields["payload"]
}

// JSON re-encodes the full request including any injected requestId
func (r *TransactionRequest) JSON() string {
	data, _ := json.Marshal(r.fields)
	return string(data)
}

// Detail decodes the request into generic values for script-engine events
func (r *TransactionRequest) Detail() map[string]interface{} {
	out := make(map[string]interface{}, len(r.fields))
	for k, v := range r.fields {
		var decoded interface{}
		if err := json.Unmarshal(v, &decoded); err == nil {
			out[k] = decoded
		}
	}
	return out
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return s, nil
}
