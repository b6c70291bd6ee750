// Package grpc carries the runtime contract between the router and the
// blockchain runtime process.
//
// The service is walletbridge.v1.RuntimeService. Its messages are plain Go
// structs encoded with the "json" codec (sonic) rather than protobuf, so
// the contract lives entirely in this package. The standard gRPC health
// service runs on the same server.
//
// Methods:
//   - SwitchBlockchain: queue a context switch, returns once queued
//   - GetActiveBlockchainId: the active (or loading) blockchain id
//   - IsReady: whether the active context finished loading
//   - ProcessRequest: forward one request and block until its callback
//     resolves; the callback outcome travels back in the reply
//
// Example Usage:
//
//	srv := grpc.NewServer(process, grpc.ServerOptions{Logger: logger})
//	go srv.Serve(lis)
//
//	client, err := grpc.Dial("unix:///tmp/walletbridge-runtime.sock", grpc.ClientOptions{})
//	router.Bind(client)
package grpc
