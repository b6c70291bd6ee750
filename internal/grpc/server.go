package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/walletbridge/internal/runtime"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

var errCallerGone = errors.New("rpc caller went away")

// Backend is the runtime process as the server sees it.
// runtime.Process satisfies it.
type Backend interface {
	SwitchBlockchain(blockchainID string) error
	ActiveBlockchainID() string
	IsReady() bool
	ProcessRequest(requestJSON string, cb types.Callback)
}

// ServerOptions configures a Server
type ServerOptions struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	Tracer  *tracing.Tracer
}

// Server exposes a Backend as RuntimeService plus gRPC health
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	backend Backend
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewServer builds the gRPC server. Nothing listens until Serve.
func NewServer(backend Backend, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		backend: backend,
		health:  health.NewServer(),
		logger:  opts.Logger.Named("rpc"),
		metrics: opts.Metrics,
	}

	interceptors := []grpc.UnaryServerInterceptor{s.observe}
	if opts.Tracer != nil {
		interceptors = append([]grpc.UnaryServerInterceptor{tracing.UnaryServerInterceptor(opts.Tracer)}, interceptors...)
	}

	s.grpc = grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptors...),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: false,
		}),
		grpc.MaxRecvMsgSize(10*1024*1024),
		grpc.MaxSendMsgSize(10*1024*1024),
	)
	RegisterRuntimeServer(s.grpc, &service{backend: backend, logger: s.logger})
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve accepts connections on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("Runtime service listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Stop marks the service not serving and drains in-flight calls. Calls
// still waiting after ctx expires are cut off.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Graceful stop timed out, closing connections")
		s.grpc.Stop()
		<-done
	}
}

// observe logs and measures every RuntimeService call
func (s *Server) observe(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)

	s.metrics.RecordGRPCCall(info.FullMethod, code.String(), time.Since(start))
	if err != nil && code != codes.InvalidArgument && code != codes.NotFound {
		s.logger.Warn("RPC failed",
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Error(err))
	}
	return resp, err
}

// Listen opens a listener for address. "unix://path" and "unix:path" are
// unix sockets, replacing a stale socket file; anything else is TCP.
func Listen(address string) (net.Listener, error) {
	path, ok := unixPath(address)
	if !ok {
		return net.Listen("tcp", address)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	lis, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		lis.Close()
		return nil, fmt.Errorf("restrict socket: %w", err)
	}
	return lis, nil
}

func unixPath(address string) (string, bool) {
	switch {
	case strings.HasPrefix(address, "unix://"):
		return strings.TrimPrefix(address, "unix://"), true
	case strings.HasPrefix(address, "unix:"):
		return strings.TrimPrefix(address, "unix:"), true
	}
	return "", false
}

type service struct {
	backend Backend
	logger  *zap.Logger
}

func (s *service) SwitchBlockchain(_ context.Context, in *SwitchRequest) (*Empty, error) {
	err := s.backend.SwitchBlockchain(in.BlockchainID)
	switch {
	case err == nil:
		return &Empty{}, nil
	case errors.Is(err, runtime.ErrClosed):
		return nil, status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, runtime.ErrUnknownApp):
		return nil, status.Error(codes.NotFound, err.Error())
	default:
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
}

func (s *service) GetActiveBlockchainId(context.Context, *Empty) (*ActiveBlockchain, error) {
	return &ActiveBlockchain{BlockchainID: s.backend.ActiveBlockchainID()}, nil
}

func (s *service) IsReady(context.Context, *Empty) (*Readiness, error) {
	return &Readiness{Ready: s.backend.IsReady()}, nil
}

// ProcessRequest blocks until the backend resolves the callback. If the
// caller leaves first, the late resolution is refused so the runtime logs
// a dead endpoint.
func (s *service) ProcessRequest(ctx context.Context, in *TransactionCall) (*TransactionResult, error) {
	outcome := make(chan *TransactionResult, 1)
	var gone atomic.Bool

	deliver := func(success bool) func(string) error {
		return func(payload string) error {
			if gone.Load() {
				return errCallerGone
			}
			outcome <- &TransactionResult{Success: success, Payload: payload}
			return nil
		}
	}
	s.backend.ProcessRequest(in.Request, types.CallbackFuncs{
		Success: deliver(true),
		Failure: deliver(false),
	})

	select {
	case res := <-outcome:
		return res, nil
	case <-ctx.Done():
		gone.Store(true)
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

var _ Backend = (*runtime.Process)(nil)
