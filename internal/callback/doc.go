// Package callback tracks in-flight bridge requests and guarantees each
// registered handle is resolved exactly once: by a response, an error, the
// timeout window, or registry cleanup.
//
// All pending state is owned by one actor goroutine that consumes actions
// from a channel in arrival order. Handles are invoked off the actor so a
// slow or dead endpoint never stalls other requests.
package callback
