// Command router runs the transaction bridge router.
//
// It connects to the runtime process, owns the session password cache and
// serves the wallet API for browser callers:
//
//	/api/v1/...   JSON API (transactions, keystore, session, apps)
//	/ws           streaming transaction requests
//	/health       router and runtime health
//	/metrics      Prometheus metrics
//
// Usage:
//
//	router [-port 8000] [-runtime unix:///tmp/walletbridge-runtime.sock]
package main
