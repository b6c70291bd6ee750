package callback

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

// DefaultTimeout is the window a request may stay pending
const DefaultTimeout = 30 * time.Second

// codeOK labels successful resolutions in metrics and resolution hooks
const codeOK types.ErrorCode = "OK"

// Options configures a Registry
type Options struct {
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	// OnResolved runs after a pending entry's handle has been invoked.
	// It is not called for duplicate or post-shutdown registrations.
	OnResolved func(requestID string, code types.ErrorCode)
}

type entry struct {
	handle       types.Callback
	payload      string
	registeredAt time.Time
	generation   uint64
	timer        *time.Timer
}

type resolution struct {
	code types.ErrorCode // empty on success
	body string
}

// Registry maps requestIds to caller handles. Safe for concurrent use.
type Registry struct {
	timeout    time.Duration
	logger     *zap.Logger
	metrics    *monitoring.Metrics
	onResolved func(string, types.ErrorCode)

	actions chan action
	halted  chan struct{}
	once    sync.Once

	// in-flight handle invocations; Cleanup waits for them
	deliveries sync.WaitGroup

	// owned by the actor goroutine
	pending    map[string]*entry
	generation uint64
}

// New starts a registry actor
func New(opts Options) *Registry {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := &Registry{
		timeout:    opts.Timeout,
		logger:     opts.Logger.Named("callback"),
		metrics:    opts.Metrics,
		onResolved: opts.OnResolved,
		actions:    make(chan action),
		halted:     make(chan struct{}),
		pending:    make(map[string]*entry),
	}
	go r.run()
	return r
}

// Register tracks handle under requestID and arms the timeout window. It
// reports false when requestID is already pending or the registry is shut
// down; handle has then been resolved with an error and must not be used
// for further work.
func (r *Registry) Register(requestID string, handle types.Callback, payload string) bool {
	accepted := make(chan bool, 1)
	r.send(registerAction{requestID: requestID, handle: handle, payload: payload, accepted: accepted})
	return <-accepted
}

// Complete resolves requestID successfully. No-op when not pending.
func (r *Registry) Complete(requestID, response string) {
	r.send(completeAction{requestID: requestID, response: response})
}

// Error resolves requestID with an error payload. No-op when not pending.
func (r *Registry) Error(requestID, message string, code types.ErrorCode) {
	r.send(errorAction{requestID: requestID, message: message, code: code})
}

// Pending returns the number of unresolved entries
func (r *Registry) Pending() int {
	reply := make(chan int, 1)
	r.send(countAction{reply: reply})
	return <-reply
}

// Cleanup resolves every pending entry with SERVICE_DESTROYED, halts the
// actor and waits until all handles have been invoked. Safe to call more
// than once.
func (r *Registry) Cleanup() {
	r.send(cleanupAction{})
	<-r.halted
	r.deliveries.Wait()
}

// send blocks until the actor takes the action or has halted. The actions
// channel is unbuffered, so nothing can be stranded in it after halt.
func (r *Registry) send(a action) {
	select {
	case r.actions <- a:
	case <-r.halted:
		a.rejected(r)
	}
}

func (r *Registry) run() {
	for a := range r.actions {
		if a.apply(r) {
			r.once.Do(func() { close(r.halted) })
			return
		}
	}
}

func (r *Registry) register(requestID string, handle types.Callback, payload string) bool {
	if _, live := r.pending[requestID]; live {
		r.logger.Warn("Duplicate requestId rejected", zap.String("request_id", requestID))
		r.deliver(requestID, handle, resolution{
			code: types.CodeProcessingError,
			body: types.ErrorJSON(types.CodeProcessingError, "duplicate requestId", requestID),
		}, nil)
		return false
	}

	r.generation++
	gen := r.generation
	e := &entry{
		handle:       handle,
		payload:      payload,
		registeredAt: time.Now(),
		generation:   gen,
	}
	e.timer = time.AfterFunc(r.timeout, func() {
		r.send(timeoutAction{requestID: requestID, generation: gen})
	})
	r.pending[requestID] = e
	r.metrics.SetPendingCallbacks(len(r.pending))

	r.logger.Debug("Callback registered",
		zap.String("request_id", requestID),
		zap.Int("pending", len(r.pending)))
	return true
}

func (r *Registry) resolve(requestID string, res resolution) {
	e, ok := r.pending[requestID]
	if !ok {
		r.logger.Debug("Resolution for unknown request ignored", zap.String("request_id", requestID))
		return
	}
	r.remove(requestID, e)
	r.deliver(requestID, e.handle, res, e)
}

func (r *Registry) expire(requestID string, generation uint64) {
	e, ok := r.pending[requestID]
	if !ok || e.generation != generation {
		return
	}
	r.remove(requestID, e)
	r.metrics.IncTimeouts()
	r.logger.Warn("Request timed out",
		zap.String("request_id", requestID),
		zap.Duration("timeout", r.timeout))

	msg := fmt.Sprintf("request timed out after %s", r.timeout)
	r.deliver(requestID, e.handle, resolution{
		code: types.CodeTimeout,
		body: types.ErrorJSON(types.CodeTimeout, msg, requestID),
	}, e)
}

func (r *Registry) destroyAll() {
	if len(r.pending) > 0 {
		r.logger.Info("Destroying pending callbacks", zap.Int("count", len(r.pending)))
	}
	for requestID, e := range r.pending {
		r.remove(requestID, e)
		r.deliver(requestID, e.handle, resolution{
			code: types.CodeServiceDestroyed,
			body: types.ErrorJSON(types.CodeServiceDestroyed, "runtime service destroyed", requestID),
		}, e)
	}
}

func (r *Registry) remove(requestID string, e *entry) {
	e.timer.Stop()
	delete(r.pending, requestID)
	r.metrics.SetPendingCallbacks(len(r.pending))
}

// deliver invokes the handle off the actor. e is nil for handles that were
// never pending.
func (r *Registry) deliver(requestID string, handle types.Callback, res resolution, e *entry) {
	r.deliveries.Add(1)
	go func() {
		defer r.deliveries.Done()
		r.invoke(requestID, handle, res)
		if e == nil {
			return
		}

		code := res.code
		if code == "" {
			code = codeOK
		}
		r.metrics.RecordBridgeResult(string(code), time.Since(e.registeredAt))
		if r.onResolved != nil {
			r.onResolved(requestID, code)
		}
	}()
}

// invoke calls exactly one side of handle. Errors and panics from a dead
// endpoint are logged and swallowed.
func (r *Registry) invoke(requestID string, handle types.Callback, res resolution) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Callback panicked",
				zap.String("request_id", requestID),
				zap.Any("panic", p))
		}
	}()

	var err error
	if res.code == "" {
		err = handle.OnSuccess(res.body)
	} else {
		err = handle.OnError(res.body)
	}
	if err != nil {
		r.logger.Warn("Callback endpoint unreachable",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}
