/*
Package tracing follows one bridged request across the router and runtime
processes.

A Tracer hands out spans and logs them through zap once finished. The trace
id travels in the X-Trace-ID / X-Span-ID headers over HTTP and in the
x-trace-id / x-span-id metadata keys over gRPC. The router seeds the trace
with the request id, so the runtime's log lines for a request share the
caller's trace id.

# Usage

	tracer := tracing.New("router", logger)
	defer tracer.Close()

	engine.Use(tracing.HTTPMiddleware(tracer))

	conn, err := grpc.NewClient(addr,
		grpc.WithUnaryInterceptor(tracing.UnaryClientInterceptor(tracer)),
	)

	server := grpc.NewServer(
		grpc.UnaryInterceptor(tracing.UnaryServerInterceptor(tracer)),
	)

Spans are buffered (1000) and dropped with a warning when the collector
falls behind.
*/
package tracing
