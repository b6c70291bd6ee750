// Package ws provides the streaming caller adapter: transaction requests
// over a WebSocket, with many requests in flight on one connection.
//
// Message Types (Client → Server):
//   - requestTransaction: {id, request} where request is the transaction
//     object or its JSON text
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - system: Connection established
//   - result: {id, result} for a resolved request
//   - error: {id, error} for a failed request, or {message} for a bad frame
//   - pong: Keep-alive reply
//
// Example Usage:
//
//	handler := ws.NewHandler(router, ws.Options{Logger: logger})
//	engine.GET("/ws", handler.HandleConnection)
package ws
