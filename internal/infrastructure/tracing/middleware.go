package tracing

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HTTPMiddleware traces each request and echoes the trace headers
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := withRemoteParent(c.Request.Context(),
			c.GetHeader(HeaderTraceID), c.GetHeader(HeaderSpanID))

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderTraceID, string(span.TraceID))
		c.Header(HeaderSpanID, string(span.SpanID))

		c.Next()

		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetError("HTTP_ERROR", c.Errors.Last())
		}
		tracer.Finish(span)
	}
}

// UnaryServerInterceptor continues the caller's trace on the runtime side
func UnaryServerInterceptor(tracer *Tracer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			ctx = withRemoteParent(ctx, first(md, metadataTraceID), first(md, metadataSpanID))
		}

		span, ctx := tracer.StartSpan(ctx, info.FullMethod)
		span.SetTag("rpc.system", "grpc")

		resp, err := handler(ctx, req)
		if err != nil {
			span.SetError(status.Code(err).String(), err)
		}
		tracer.Finish(span)
		return resp, err
	}
}

// UnaryClientInterceptor opens a client span and propagates it in metadata
func UnaryClientInterceptor(tracer *Tracer) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		span, ctx := tracer.StartSpan(ctx, method)
		span.SetTag("span.kind", "client")

		ctx = metadata.AppendToOutgoingContext(ctx,
			metadataTraceID, string(span.TraceID),
			metadataSpanID, string(span.SpanID))

		err := invoker(ctx, method, req, reply, cc, opts...)
		if err != nil {
			span.SetError(status.Code(err).String(), err)
		}
		tracer.Finish(span)
		return err
	}
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
