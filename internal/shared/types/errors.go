package types

import (
	"encoding/json"
	"fmt"
)

// ErrorCode identifies a failure class on the callback error channel
type ErrorCode string

const (
	CodeServiceNotConnected ErrorCode = "SERVICE_NOT_CONNECTED"
	CodeNoActiveBlockchain  ErrorCode = "NO_ACTIVE_BLOCKCHAIN"
	CodeRemoteException     ErrorCode = "REMOTE_EXCEPTION"
	CodeProcessingError     ErrorCode = "PROCESSING_ERROR"
	CodeTimeout             ErrorCode = "TIMEOUT"
	CodeServiceDestroyed    ErrorCode = "SERVICE_DESTROYED"
	CodeNotAuthenticated    ErrorCode = "NOT_AUTHENTICATED"
	CodeInvalidPassword     ErrorCode = "INVALID_PASSWORD"
	CodeInvalidKeystore     ErrorCode = "INVALID_KEYSTORE"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
)

// ErrorPayload is the JSON document delivered through Callback.OnError
type ErrorPayload struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"requestId,omitempty"`
}

// Error implements error so payloads can travel through Go error paths
func (e *ErrorPayload) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %s (request %s)", e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorJSON renders an error payload. Marshalling a flat struct of
// strings cannot fail, so the error is dropped.
func ErrorJSON(code ErrorCode, message, requestID string) string {
	data, _ := json.Marshal(ErrorPayload{Code: code, Message: message, RequestID: requestID})
	return string(data)
}

// ParseErrorJSON decodes an error payload produced by ErrorJSON. Payloads
// without a code are reported as PROCESSING_ERROR with the raw text.
func ParseErrorJSON(raw string) *ErrorPayload {
	var p ErrorPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.Code == "" {
		return &ErrorPayload{Code: CodeProcessingError, Message: raw}
	}
	return &p
}

// Callback receives the terminal result of one request. Exactly one of the
// two methods is invoked per request. A returned error means the receiving
// endpoint is gone; callers log it and move on.
type Callback interface {
	OnSuccess(result string) error
	OnError(result string) error
}

// CallbackFuncs adapts a pair of functions to Callback
type CallbackFuncs struct {
	Success func(result string) error
	Failure func(result string) error
}

// OnSuccess implements Callback
func (c CallbackFuncs) OnSuccess(result string) error {
	if c.Success == nil {
		return nil
	}
	return c.Success(result)
}

// OnError implements Callback
func (c CallbackFuncs) OnError(result string) error {
	if c.Failure == nil {
		return nil
	}
	return c.Failure(result)
}
