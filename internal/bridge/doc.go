// Package bridge routes caller requests to the blockchain runtime process.
//
// The Router is the only entry point callers use. It checks the runtime
// connection, switches the active blockchain when a request targets a
// different one, forwards the request with the caller's own callback and
// maps every failure onto the callback error channel. Keystore creation
// and decryption run here too, using the password cached by the session.
package bridge
