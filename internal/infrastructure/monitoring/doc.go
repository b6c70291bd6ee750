/*
Package monitoring provides Prometheus metrics for the wallet bridge.

# Features

- HTTP request metrics for the browser adapter
- Bridge request outcomes by error code and end-to-end latency
- Pending callback gauge and timeout counter
- Context switch and dispatch counters for the runtime process
- Keystore and session operation timings
- gRPC call metrics between router and runtime

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "keystore", "decrypt")
	// ... perform operation ...
	timer.Stop("success")

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

A nil *Metrics is accepted everywhere and records nothing.
*/
package monitoring
