package runtime

import (
	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

// outcome is a signer response classified for the callback registry
type outcome struct {
	failed  bool
	message string
	code    types.ErrorCode
}

var knownCodes = map[types.ErrorCode]bool{
	types.CodeServiceNotConnected: true,
	types.CodeNoActiveBlockchain:  true,
	types.CodeRemoteException:     true,
	types.CodeProcessingError:     true,
	types.CodeTimeout:             true,
	types.CodeServiceDestroyed:    true,
	types.CodeNotAuthenticated:    true,
	types.CodeInvalidPassword:     true,
	types.CodeInvalidKeystore:     true,
	types.CodeRateLimited:         true,
}

// classify inspects a signer response. A JSON object with a non-null
// "error" member is a failure; anything else, including non-JSON text,
// completes the request as-is.
func classify(response string) outcome {
	var doc map[string]interface{}
	if err := sonic.UnmarshalString(response, &doc); err != nil {
		return outcome{}
	}
	errValue, ok := doc["error"]
	if !ok || errValue == nil {
		return outcome{}
	}

	out := outcome{failed: true, code: types.CodeProcessingError}
	out.code = codeOf(doc["code"], out.code)

	switch v := errValue.(type) {
	case string:
		out.message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			out.message = msg
		} else {
			out.message, _ = sonic.MarshalString(v)
		}
		out.code = codeOf(v["code"], out.code)
	default:
		out.message, _ = sonic.MarshalString(v)
	}
	if out.message == "" {
		out.message = "signing script reported an error"
	}
	return out
}

func codeOf(raw interface{}, fallback types.ErrorCode) types.ErrorCode {
	s, ok := raw.(string)
	if !ok {
		return fallback
	}
	if code := types.ErrorCode(s); knownCodes[code] {
		return code
	}
	return fallback
}
