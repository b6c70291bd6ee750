package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified RuntimeService name
const ServiceName = "walletbridge.v1.RuntimeService"

const (
	methodSwitch  = "/" + ServiceName + "/SwitchBlockchain"
	methodActive  = "/" + ServiceName + "/GetActiveBlockchainId"
	methodReady   = "/" + ServiceName + "/IsReady"
	methodProcess = "/" + ServiceName + "/ProcessRequest"
)

// Empty is the request of the parameterless methods
type Empty struct{}

// SwitchRequest names the blockchain to activate
type SwitchRequest struct {
	BlockchainID string `json:"blockchainId"`
}

// ActiveBlockchain is the reply of GetActiveBlockchainId
type ActiveBlockchain struct {
	BlockchainID string `json:"blockchainId"`
}

// Readiness is the reply of IsReady
type Readiness struct {
	Ready bool `json:"ready"`
}

// TransactionCall carries one caller request verbatim
type TransactionCall struct {
	Request string `json:"request"`
}

// TransactionResult is the terminal callback outcome of a request.
// Payload is the OnSuccess result or the OnError JSON.
type TransactionResult struct {
	Success bool   `json:"success"`
	Payload string `json:"payload"`
}

// RuntimeServer is the server side of RuntimeService
type RuntimeServer interface {
	SwitchBlockchain(context.Context, *SwitchRequest) (*Empty, error)
	GetActiveBlockchainId(context.Context, *Empty) (*ActiveBlockchain, error)
	IsReady(context.Context, *Empty) (*Readiness, error)
	ProcessRequest(context.Context, *TransactionCall) (*TransactionResult, error)
}

// RegisterRuntimeServer attaches srv to a gRPC server
func RegisterRuntimeServer(s grpc.ServiceRegistrar, srv RuntimeServer) {
	s.RegisterService(&runtimeServiceDesc, srv)
}

var runtimeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RuntimeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SwitchBlockchain", Handler: unary(methodSwitch, RuntimeServer.SwitchBlockchain)},
		{MethodName: "GetActiveBlockchainId", Handler: unary(methodActive, RuntimeServer.GetActiveBlockchainId)},
		{MethodName: "IsReady", Handler: unary(methodReady, RuntimeServer.IsReady)},
		{MethodName: "ProcessRequest", Handler: unary(methodProcess, RuntimeServer.ProcessRequest)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "walletbridge/v1/runtime",
}

// unary adapts a typed method to grpc.MethodDesc's handler shape
func unary[Req, Resp any](fullMethod string, call func(RuntimeServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RuntimeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(RuntimeServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
