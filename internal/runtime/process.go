package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/callback"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/walletbridge/internal/registry"
	"github.com/GriffinCanCode/walletbridge/internal/sandbox"
	"github.com/GriffinCanCode/walletbridge/internal/shared/id"
	"github.com/GriffinCanCode/walletbridge/internal/shared/paths"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
	"github.com/GriffinCanCode/walletbridge/internal/shared/utils"
)

// TransactionEvent is the event type dispatched into signing scripts
const TransactionEvent = "transactionRequest"

var (
	ErrUnknownApp = errors.New("unknown blockchain app")
	ErrClosed     = errors.New("runtime process closed")
)

// State of the active blockchain context
type State int

const (
	NoActiveContext State = iota
	ContextLoading
	ContextReady
)

func (s State) String() string {
	switch s {
	case ContextLoading:
		return "loading"
	case ContextReady:
		return "ready"
	default:
		return "none"
	}
}

// Status is a consistent snapshot of the active context
type Status struct {
	BlockchainID string
	State        State
	// LoadError is set when the last switch failed to produce a context
	LoadError string
}

// Options configures a Process
type Options struct {
	AppsDir         string
	Catalog         *registry.Catalog // optional; unknown ids are rejected when set
	CallbackTimeout time.Duration
	Sandbox         sandbox.Config
	Logger          *zap.Logger
	Metrics         *monitoring.Metrics
}

// Process hosts the single authoritative blockchain context and correlates
// transaction requests with the responses its signing script sends back.
type Process struct {
	appsDir string
	catalog *registry.Catalog
	config  sandbox.Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	loop      *Looper
	callbacks *callback.Registry
	status    atomic.Pointer[Status]
	closed    atomic.Bool
	switchMu  sync.Mutex

	// owned by the loop
	ctx        *sandbox.Context
	generation uint64
	queue      []*types.TransactionRequest
	inFlight   string
	reentrant  bool
}

// New starts a runtime process with no active context
func New(opts Options) *Process {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("runtime")

	p := &Process{
		appsDir: opts.AppsDir,
		catalog: opts.Catalog,
		config:  opts.Sandbox,
		logger:  logger,
		metrics: opts.Metrics,
		loop:    NewLooper(logger),
	}
	p.callbacks = callback.New(callback.Options{
		Timeout:    opts.CallbackTimeout,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
		OnResolved: p.resolved,
	})
	p.status.Store(&Status{State: NoActiveContext})
	return p
}

// Status returns the current context snapshot
func (p *Process) Status() Status {
	return *p.status.Load()
}

// ActiveBlockchainID returns the id of the active or loading context
func (p *Process) ActiveBlockchainID() string {
	return p.status.Load().BlockchainID
}

// IsReady reports whether the active context finished loading its entry
// page and can take requests.
func (p *Process) IsReady() bool {
	return !p.closed.Load() && p.status.Load().State == ContextReady
}

// Pending returns the number of unresolved requests
func (p *Process) Pending() int {
	return p.callbacks.Pending()
}

// SwitchBlockchain replaces the active context with blockchainID. It
// returns once the switch is queued; readiness is reported by IsReady.
// Switching to the id already loading or ready is a no-op.
func (p *Process) SwitchBlockchain(blockchainID string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := paths.ValidateAppID(blockchainID); err != nil {
		return err
	}
	if p.catalog != nil && !p.catalog.Has(blockchainID) {
		p.logger.Warn("Switch to unknown app rejected", zap.String("blockchain_id", blockchainID))
		return fmt.Errorf("%w: %s", ErrUnknownApp, blockchainID)
	}

	p.switchMu.Lock()
	defer p.switchMu.Unlock()

	current := p.status.Load()
	if current.BlockchainID == blockchainID && current.State != NoActiveContext {
		return nil
	}
	// Published before the loop runs so requests sent right after the
	// switch queue for the new context instead of failing
	previous := p.status.Swap(&Status{BlockchainID: blockchainID, State: ContextLoading})
	if !p.loop.Post(func() { p.switchTo(blockchainID) }) {
		p.status.Store(previous)
		return ErrClosed
	}
	return nil
}

// ProcessRequest registers cb and dispatches the request into the active
// context. It never blocks on the script; cb is resolved exactly once.
func (p *Process) ProcessRequest(requestJSON string, cb types.Callback) {
	if p.closed.Load() {
		reject(p.logger, cb, types.CodeServiceDestroyed, "runtime process closed", "")
		return
	}
	if len(requestJSON) > utils.MaxRequestSize {
		reject(p.logger, cb, types.CodeProcessingError, "request exceeds size limit", "")
		return
	}

	req, err := types.ParseTransactionRequest(requestJSON)
	if err != nil {
		reject(p.logger, cb, types.CodeProcessingError, err.Error(), "")
		return
	}
	if req.EnsureRequestID(func() string { return id.NewRequestID().String() }) {
		p.logger.Debug("Injected requestId", zap.String("request_id", req.RequestID))
	}
	if p.ActiveBlockchainID() == "" {
		reject(p.logger, cb, types.CodeNoActiveBlockchain, "no blockchain has been activated", req.RequestID)
		return
	}

	if !p.callbacks.Register(req.RequestID, cb, req.JSON()) {
		return
	}
	if !p.loop.Post(func() { p.enqueue(req) }) {
		p.callbacks.Error(req.RequestID, "runtime process closed", types.CodeServiceDestroyed)
	}
}

// Close resolves every pending request with SERVICE_DESTROYED, tears
// down the active context and stops the loop.
func (p *Process) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.callbacks.Cleanup()
	_ = p.loop.Call(context.Background(), func() error {
		p.teardown()
		return nil
	})
	p.loop.Stop()
	p.status.Store(&Status{State: NoActiveContext})
	p.logger.Info("Runtime process closed")
}

// switchTo runs on the loop
func (p *Process) switchTo(blockchainID string) {
	p.teardown()
	p.generation++
	gen := p.generation
	p.logger.Info("Switching blockchain", zap.String("blockchain_id", blockchainID))

	// Manifest I/O stays off the loop
	go func() {
		manifest := p.resolveManifest(blockchainID)
		p.loop.Post(func() { p.finishSwitch(gen, blockchainID, manifest) })
	}()
}

func (p *Process) resolveManifest(blockchainID string) *types.Manifest {
	if p.catalog != nil {
		if m, ok := p.catalog.Get(blockchainID); ok {
			return m
		}
	}
	m, err := registry.LoadManifest(paths.AppPath(p.appsDir, blockchainID))
	if err != nil {
		p.logger.Warn("Manifest unavailable, using defaults",
			zap.String("blockchain_id", blockchainID),
			zap.Error(err))
		return registry.Fallback(blockchainID)
	}
	return m
}

// finishSwitch runs on the loop. A newer switch or Close supersedes it.
func (p *Process) finishSwitch(gen uint64, blockchainID string, manifest *types.Manifest) {
	if gen != p.generation || p.closed.Load() {
		return
	}

	ctx, err := sandbox.NewContext(sandbox.Options{
		AppDir:     paths.AppPath(p.appsDir, blockchainID).Dir(),
		Manifest:   manifest,
		Role:       sandbox.RoleSigner,
		Loop:       p.loop,
		Config:     p.config,
		Logger:     p.logger,
		OnResponse: p.onResponse,
	})
	if err == nil {
		err = ctx.Load()
		if err != nil {
			ctx.Close()
		}
	}
	if err != nil {
		p.failSwitch(blockchainID, err)
		return
	}

	p.ctx = ctx
	p.reentrant = manifest.Reentrant
	p.status.Store(&Status{BlockchainID: blockchainID, State: ContextReady})
	p.metrics.RecordContextSwitch("ready")
	p.logger.Info("Blockchain context ready",
		zap.String("blockchain_id", blockchainID),
		zap.String("context_id", ctx.ID().String()),
		zap.String("origin", ctx.Origin()),
		zap.Int("queued", len(p.queue)))
	p.pump()
}

// failSwitch runs on the loop for the current generation only
func (p *Process) failSwitch(blockchainID string, err error) {
	p.metrics.RecordContextSwitch("failed")
	p.logger.Error("Blockchain context failed to load",
		zap.String("blockchain_id", blockchainID),
		zap.Error(err))
	p.status.Store(&Status{BlockchainID: blockchainID, State: NoActiveContext, LoadError: err.Error()})
	p.failQueued("blockchain context failed to load: " + err.Error())
}

// teardown closes the active context. Requests queued for it or in
// flight inside it can no longer be answered and are failed now.
func (p *Process) teardown() {
	if p.ctx != nil {
		p.ctx.Close()
		p.ctx = nil
		p.logger.Debug("Blockchain context torn down")
	}
	if p.inFlight != "" {
		p.callbacks.Error(p.inFlight, "blockchain context torn down", types.CodeProcessingError)
		p.inFlight = ""
	}
	p.failQueued("blockchain context switched before dispatch")
	p.reentrant = false
}

func (p *Process) failQueued(message string) {
	for _, req := range p.queue {
		p.callbacks.Error(req.RequestID, message, types.CodeProcessingError)
	}
	p.queue = nil
}

// enqueue runs on the loop
func (p *Process) enqueue(req *types.TransactionRequest) {
	status := p.status.Load()
	if status.State == NoActiveContext {
		msg := "no blockchain context"
		if status.LoadError != "" {
			msg = "blockchain context failed to load: " + status.LoadError
		}
		p.callbacks.Error(req.RequestID, msg, types.CodeProcessingError)
		return
	}
	p.queue = append(p.queue, req)
	p.pump()
}

// pump dispatches queued requests while the context is ready. Unless the
// manifest declares the app reentrant, one request is in flight at a time.
func (p *Process) pump() {
	for p.ctx != nil && len(p.queue) > 0 && (p.reentrant || p.inFlight == "") {
		req := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.dispatch(req)
	}
}

func (p *Process) dispatch(req *types.TransactionRequest) {
	if !p.reentrant {
		p.inFlight = req.RequestID
	}
	p.metrics.IncDispatches()

	n, err := p.ctx.Dispatch(TransactionEvent, req.Detail())
	switch {
	case err != nil:
		p.logger.Warn("Dispatch failed", zap.String("request_id", req.RequestID), zap.Error(err))
		p.callbacks.Error(req.RequestID, err.Error(), types.CodeProcessingError)
	case n == 0:
		p.callbacks.Error(req.RequestID, "signing script has no "+TransactionEvent+" listener", types.CodeProcessingError)
	default:
		p.logger.Debug("Request dispatched", zap.String("request_id", req.RequestID), zap.Int("listeners", n))
	}
}

// onResponse runs on the loop, called by the signing script
func (p *Process) onResponse(requestID, response string) {
	out := classify(response)
	if out.failed {
		p.callbacks.Error(requestID, out.message, out.code)
		return
	}
	p.callbacks.Complete(requestID, response)
}

// resolved is called by the registry after a handle has been invoked
func (p *Process) resolved(requestID string, code types.ErrorCode) {
	p.loop.Post(func() {
		for i, req := range p.queue {
			if req.RequestID == requestID {
				p.queue = append(p.queue[:i], p.queue[i+1:]...)
				break
			}
		}
		if p.inFlight == requestID {
			p.inFlight = ""
			p.pump()
		}
	})
}

// reject resolves a handle that was never registered
func reject(logger *zap.Logger, cb types.Callback, code types.ErrorCode, message, requestID string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Callback panicked", zap.Any("panic", r))
		}
	}()
	if err := cb.OnError(types.ErrorJSON(code, message, requestID)); err != nil {
		logger.Warn("Callback endpoint unreachable", zap.Error(err))
	}
}
