// Package middleware provides the gin middleware of the wallet HTTP API:
// CORS restricted to the configured UI origins and a per-client rate limit
// answering 429 with a RATE_LIMITED failure body.
package middleware
