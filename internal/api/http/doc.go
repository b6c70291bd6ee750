// Package http provides the browser-side caller adapter: the wallet's
// JSON API over gin.
//
// Every router callback is awaited within the request and mapped to an
// HTTP status; error bodies carry the human-readable message from the
// adapter package next to the raw code.
//
// Routes (under /api/v1):
//   - GET  /status
//   - POST /session/unlock, POST /session/lock
//   - POST /blockchain/activate
//   - GET  /apps, GET /apps/:id/assets/*path
//   - POST /transactions
//   - POST /keystore, POST /keystore/decrypt
//   - GET  /webapps, POST|DELETE /webapps/:id
//   - POST /webapps/:id/eval, GET /webapps/:id/console
package http
