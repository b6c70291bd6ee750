// Package adapter holds the caller-side forwarders that sit between a user
// surface and the bridge router.
//
// WebApp hosts a web mini-app in a caller-role script context on its own
// loop; its WalletBridge.requestTransaction calls go to the router. The
// HTTP surface lives in internal/api and shares this package's message
// table, so raw error codes never reach a user unexplained.
package adapter
