// Package types provides shared data structures for the wallet bridge.
//
// This package defines the types that cross component and process
// boundaries, so every layer agrees on their shape.
//
// Core Types:
//   - TransactionRequest: A caller's signing/transaction request
//   - ErrorCode: Stable codes delivered on the callback error channel
//   - ErrorPayload: JSON body of every callback error
//   - Manifest: Mini-app manifest as installed on disk
//
// Example Usage:
//
//	req, err := types.ParseTransactionRequest(raw)
//	if err != nil {
//	    cb.OnError(types.ErrorJSON(types.CodeProcessingError, err.Error(), ""))
//	}
package types
