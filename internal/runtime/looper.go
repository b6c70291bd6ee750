package runtime

import (
	"context"
	"errors"
	goruntime "runtime"
	"sync"

	"go.uber.org/zap"
)

// ErrLooperStopped is returned for work submitted after Stop
var ErrLooperStopped = errors.New("looper stopped")

// Looper runs posted functions in order on one locked OS thread. Script
// engine state is only ever touched from inside a posted function.
type Looper struct {
	logger *zap.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

// NewLooper starts a looper goroutine
func NewLooper(logger *zap.Logger) *Looper {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Looper{
		logger: logger.Named("looper"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Post queues fn without blocking. Reports false after Stop.
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the loop and waits for its result
func (l *Looper) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !l.Post(func() { result <- fn() }) {
		return ErrLooperStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop runs work already queued, then exits the loop and waits for it
func (l *Looper) Stop() {
	l.mu.Lock()
	if !l.stopped {
		l.stopped = true
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
	l.mu.Unlock()
	<-l.done
}

func (l *Looper) run() {
	goruntime.LockOSThread()
	defer goruntime.UnlockOSThread()
	defer close(l.done)

	for {
		<-l.wake
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				stopped := l.stopped
				l.mu.Unlock()
				if stopped {
					return
				}
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.execute(fn)
		}
	}
}

func (l *Looper) execute(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			l.logger.Error("Loop task panicked", zap.Any("panic", p))
		}
	}()
	fn()
}
