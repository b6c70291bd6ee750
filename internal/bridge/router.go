package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/walletbridge/internal/keystore"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

const (
	DefaultCallTimeout = 5 * time.Second
	DefaultRPS         = 20
	DefaultBurst       = 40
)

// ErrNotConnected is returned by the synchronous queries while no runtime
// is bound or the bound runtime is unreachable
var ErrNotConnected = errors.New("runtime not connected")

// PasswordSource yields the cached unlock password. session.Session
// satisfies it.
type PasswordSource interface {
	Password() ([]byte, error)
}

// Options configures a Router
type Options struct {
	Runtime  Runtime
	Session  PasswordSource
	Strength keystore.Strength

	// RequestsPerSecond <= 0 disables the request limiter
	RequestsPerSecond float64
	Burst             int
	// CallTimeout bounds the control calls (status, switch) made before a
	// request is forwarded. The forwarded request itself is bounded by the
	// runtime's callback timeout.
	CallTimeout time.Duration

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Router is the single entry point for every caller
type Router struct {
	session     PasswordSource
	strength    keystore.Strength
	limiter     *rate.Limiter
	callTimeout time.Duration
	logger      *zap.Logger
	metrics     *monitoring.Metrics

	mu      sync.RWMutex
	runtime Runtime

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates a router. A nil Runtime leaves it unbound until Bind.
func New(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RequestsPerSecond)
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		session:     opts.Session,
		strength:    opts.Strength,
		limiter:     limiter,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger.Named("router"),
		metrics:     opts.Metrics,
		runtime:     opts.Runtime,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Bind attaches the runtime connection
func (r *Router) Bind(rt Runtime) {
	r.mu.Lock()
	r.runtime = rt
	r.mu.Unlock()
	r.logger.Info("Runtime bound")
}

// Unbind detaches the runtime. Later requests fail with
// SERVICE_NOT_CONNECTED until Bind is called again.
func (r *Router) Unbind() {
	r.mu.Lock()
	r.runtime = nil
	r.mu.Unlock()
	r.logger.Info("Runtime unbound")
}

// connected returns the bound runtime when it is usable
func (r *Router) connected() (Runtime, bool) {
	r.mu.RLock()
	rt := r.runtime
	r.mu.RUnlock()
	if rt == nil || !rt.Connected() {
		return nil, false
	}
	return rt, true
}

// RequestTransaction routes requestJSON to the active blockchain context.
// It returns immediately; cb receives exactly one terminal result.
func (r *Router) RequestTransaction(requestJSON string, cb types.Callback) {
	r.spawn(cb, "request_transaction", func() {
		r.route(requestJSON, cb)
	})
}

func (r *Router) route(requestJSON string, cb types.Callback) {
	timer := monitoring.NewTimer(r.metrics, "router", "request_transaction")

	if r.limiter != nil && !r.limiter.Allow() {
		timer.Stop(string(types.CodeRateLimited))
		r.fail(cb, types.CodeRateLimited, "too many requests", "")
		return
	}

	rt, ok := r.connected()
	if !ok {
		timer.Stop(string(types.CodeServiceNotConnected))
		r.fail(cb, types.CodeServiceNotConnected, "blockchain runtime is not connected", "")
		return
	}

	req, err := types.ParseTransactionRequest(requestJSON)
	if err != nil {
		timer.Stop(string(types.CodeProcessingError))
		r.fail(cb, types.CodeProcessingError, err.Error(), "")
		return
	}

	if code, msg := r.activate(rt, req.BlockchainID); code != "" {
		timer.Stop(string(code))
		r.fail(cb, code, msg, req.RequestID)
		return
	}

	// The forwarded call may block until the callback resolves, so it is
	// bounded by the router lifetime rather than CallTimeout.
	ctx := tracing.WithTraceID(r.ctx, tracing.TraceID(req.RequestID))
	if err := rt.ProcessRequest(ctx, requestJSON, cb); err != nil {
		timer.Stop(string(types.CodeRemoteException))
		r.logger.Error("Forwarding request failed",
			zap.String("request_id", req.RequestID),
			zap.Error(err))
		r.fail(cb, types.CodeRemoteException, err.Error(), req.RequestID)
		return
	}
	timer.Stop("forwarded")
}

// activate makes blockchainID the active context when it is not already.
// An empty blockchainID targets whatever is active.
func (r *Router) activate(rt Runtime, blockchainID string) (types.ErrorCode, string) {
	ctx, cancel := context.WithTimeout(r.ctx, r.callTimeout)
	defer cancel()

	active, err := rt.ActiveBlockchainID(ctx)
	if err != nil {
		r.logger.Error("Active blockchain query failed", zap.Error(err))
		return types.CodeRemoteException, err.Error()
	}
	if active == "" {
		return types.CodeNoActiveBlockchain, "no blockchain has been opened yet"
	}
	if blockchainID == "" || blockchainID == active {
		return "", ""
	}

	r.logger.Info("Switching blockchain",
		zap.String("from", active),
		zap.String("to", blockchainID))
	if err := rt.SwitchBlockchain(ctx, blockchainID); err != nil {
		if errors.Is(err, ErrSwitchRejected) {
			return types.CodeProcessingError, err.Error()
		}
		r.logger.Error("Switch failed", zap.String("blockchain_id", blockchainID), zap.Error(err))
		return types.CodeRemoteException, err.Error()
	}
	return "", ""
}

// ActivateBlockchain opens blockchainID in the runtime. Adapters call it
// when the user opens a chain mini-app.
func (r *Router) ActivateBlockchain(ctx context.Context, blockchainID string) error {
	rt, ok := r.connected()
	if !ok {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	timer := monitoring.NewTimer(r.metrics, "router", "activate")
	if err := rt.SwitchBlockchain(ctx, blockchainID); err != nil {
		timer.Stop("error")
		return err
	}
	timer.Stop("success")
	return nil
}

// ActiveBlockchainID returns the runtime's active blockchain id, empty
// when none was ever opened
func (r *Router) ActiveBlockchainID(ctx context.Context) (string, error) {
	rt, ok := r.connected()
	if !ok {
		return "", ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return rt.ActiveBlockchainID(ctx)
}

// IsReady reports whether the active context has finished loading.
// Transport failures read as not ready.
func (r *Router) IsReady(ctx context.Context) bool {
	rt, ok := r.connected()
	if !ok {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	ready, err := rt.IsReady(ctx)
	if err != nil {
		r.logger.Warn("Readiness query failed", zap.Error(err))
		return false
	}
	return ready
}

// Close rejects new work and waits for in-flight entry points to deliver
func (r *Router) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.logger.Info("Router closed")
}

// spawn runs fn off the caller's goroutine. A panic in fn is delivered to
// cb as PROCESSING_ERROR.
func (r *Router) spawn(cb types.Callback, op string, fn func()) {
	if r.closed.Load() {
		r.fail(cb, types.CodeServiceDestroyed, "router is shut down", "")
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("Router operation panicked",
					zap.String("operation", op),
					zap.Any("panic", rec))
				r.fail(cb, types.CodeProcessingError, fmt.Sprintf("internal error: %v", rec), "")
			}
		}()
		fn()
	}()
}

func (r *Router) fail(cb types.Callback, code types.ErrorCode, message, requestID string) {
	if err := cb.OnError(types.ErrorJSON(code, message, requestID)); err != nil {
		r.logger.Warn("Caller endpoint unavailable",
			zap.String("code", string(code)),
			zap.Error(err))
	}
}

func (r *Router) succeed(cb types.Callback, result string) {
	if err := cb.OnSuccess(result); err != nil {
		r.logger.Warn("Caller endpoint unavailable", zap.Error(err))
	}
}
