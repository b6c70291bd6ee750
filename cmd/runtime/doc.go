// Command runtime runs the blockchain runtime process.
//
// It hosts the single active blockchain mini-app in a script sandbox and
// exposes it to the router over RuntimeService (a unix socket by default).
// On SIGINT/SIGTERM every pending request is failed with
// SERVICE_DESTROYED before the listener drains.
//
// Usage:
//
//	runtime [-addr unix:///tmp/walletbridge-runtime.sock] [-apps ./apps]
//
// Everything else is configured through the environment (see
// internal/infrastructure/config).
package main
