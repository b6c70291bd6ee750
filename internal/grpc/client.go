package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/walletbridge/internal/bridge"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

// ClientOptions configures a Client
type ClientOptions struct {
	Logger *zap.Logger
	Tracer *tracing.Tracer
	// Breaker overrides the default runtime breaker settings
	Breaker *resilience.Settings
	// DialOptions are appended after the defaults
	DialOptions []grpc.DialOption
}

// Client is the router's connection to the runtime process
type Client struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	addr    string
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// Dial creates a client for target. The connection is established lazily.
func Dial(target string, opts ClientOptions) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("rpc-client")

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		// Only ping while a call is open; the server rejects idle pings
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: false,
		}),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(10*1024*1024),
			grpc.MaxCallSendMsgSize(10*1024*1024),
		),
	}
	if opts.Tracer != nil {
		dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(tracing.UnaryClientInterceptor(opts.Tracer)))
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial runtime: %w", err)
	}

	settings := resilience.Settings{
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.5)
		},
	}
	if opts.Breaker != nil {
		settings = *opts.Breaker
	}
	settings.IsSuccessful = answered
	settings.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn("Runtime breaker changed state",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}

	return &Client{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		addr:    target,
		breaker: resilience.New("runtime", settings),
		logger:  logger,
	}, nil
}

// answered reports whether err came from the runtime itself rather than
// from the transport
func answered(err error) bool {
	switch status.Code(err) {
	case codes.OK, codes.InvalidArgument, codes.NotFound:
		return true
	}
	return false
}

// Close closes the connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Connected implements bridge.Runtime. An idle connection counts as
// connected and starts dialing; a failing one or an open breaker does not.
func (c *Client) Connected() bool {
	if c.breaker.State() == resilience.StateOpen {
		return false
	}
	switch c.conn.GetState() {
	case connectivity.Shutdown, connectivity.TransientFailure:
		return false
	case connectivity.Idle:
		c.conn.Connect()
	}
	return true
}

// Healthy asks the runtime's health service whether RuntimeService serves
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// SwitchBlockchain implements bridge.Runtime
func (c *Client) SwitchBlockchain(ctx context.Context, blockchainID string) error {
	err := c.invoke(ctx, methodSwitch, &SwitchRequest{BlockchainID: blockchainID}, &Empty{})
	switch status.Code(err) {
	case codes.OK:
		return nil
	case codes.InvalidArgument, codes.NotFound:
		return fmt.Errorf("%w: %s", bridge.ErrSwitchRejected, status.Convert(err).Message())
	}
	return err
}

// ActiveBlockchainID implements bridge.Runtime
func (c *Client) ActiveBlockchainID(ctx context.Context) (string, error) {
	var out ActiveBlockchain
	if err := c.invoke(ctx, methodActive, &Empty{}, &out); err != nil {
		return "", err
	}
	return out.BlockchainID, nil
}

// IsReady implements bridge.Runtime
func (c *Client) IsReady(ctx context.Context) (bool, error) {
	var out Readiness
	if err := c.invoke(ctx, methodReady, &Empty{}, &out); err != nil {
		return false, err
	}
	return out.Ready, nil
}

// ProcessRequest implements bridge.Runtime. The call lasts until the
// runtime resolves the request; its outcome is then delivered to cb.
func (c *Client) ProcessRequest(ctx context.Context, requestJSON string, cb types.Callback) error {
	var out TransactionResult
	if err := c.invoke(ctx, methodProcess, &TransactionCall{Request: requestJSON}, &out); err != nil {
		return err
	}

	var err error
	if out.Success {
		err = cb.OnSuccess(out.Payload)
	} else {
		err = cb.OnError(out.Payload)
	}
	if err != nil {
		c.logger.Warn("Caller endpoint unavailable", zap.Error(err))
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	err := c.breaker.Execute(func() error {
		return c.conn.Invoke(ctx, method, in, out, grpc.CallContentSubtype(CodecName))
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return fmt.Errorf("runtime unavailable: %w", err)
	}
	return err
}

var _ bridge.Runtime = (*Client)(nil)
