package adapter

import (
	"encoding/json"

	"github.com/microcosm-cc/bluemonday"

	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

const genericMessage = "Something went wrong. Please try again."

var messages = map[types.ErrorCode]string{
	types.CodeServiceNotConnected: "The wallet service is not running. Please try again in a moment.",
	types.CodeNoActiveBlockchain:  "Open a blockchain wallet before sending a transaction.",
	types.CodeRemoteException:     "The wallet service stopped responding. Please try again.",
	types.CodeProcessingError:     "The transaction could not be processed.",
	types.CodeTimeout:             "The wallet did not respond in time.",
	types.CodeServiceDestroyed:    "The wallet service shut down before the request finished.",
	types.CodeNotAuthenticated:    "Unlock your wallet to continue.",
	types.CodeInvalidPassword:     "The password is incorrect.",
	types.CodeInvalidKeystore:     "The wallet file is damaged or not supported.",
	types.CodeRateLimited:         "Too many requests. Please slow down.",
}

// detail text can originate in an untrusted signing script
var strict = bluemonday.StrictPolicy()

// Failure is an error payload prepared for display
type Failure struct {
	Code      types.ErrorCode `json:"code"`
	Message   string          `json:"message"`
	Detail    string          `json:"detail,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// HumanMessage returns the user-facing sentence for code
func HumanMessage(code types.ErrorCode) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return genericMessage
}

// Present turns an OnError payload into a Failure. The original message
// survives as sanitized Detail.
func Present(errorJSON string) Failure {
	p := types.ParseErrorJSON(errorJSON)
	f := Failure{
		Code:      p.Code,
		Message:   HumanMessage(p.Code),
		RequestID: p.RequestID,
	}
	if detail := strict.Sanitize(p.Message); detail != f.Message {
		f.Detail = detail
	}
	return f
}

// JSON renders the failure. A flat struct of strings always marshals.
func (f Failure) JSON() string {
	data, _ := json.Marshal(f)
	return string(data)
}

// humanize rewrites error deliveries to cb into presented failures
func humanize(cb types.Callback) types.Callback {
	return types.CallbackFuncs{
		Success: cb.OnSuccess,
		Failure: func(result string) error {
			return cb.OnError(Present(result).JSON())
		},
	}
}
