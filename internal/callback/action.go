package callback

import (
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

// action is one message to the registry actor. apply reports whether the
// actor should halt after it.
type action interface {
	apply(r *Registry) (halt bool)
	// rejected runs in the sender's goroutine when the actor has halted
	rejected(r *Registry)
}

type registerAction struct {
	requestID string
	handle    types.Callback
	payload   string
	accepted  chan bool
}

type completeAction struct {
	requestID string
	response  string
}

type errorAction struct {
	requestID string
	message   string
	code      types.ErrorCode
}

// timeoutAction carries the generation of the entry its timer was armed
// for; a mismatch means the entry was resolved and replaced.
type timeoutAction struct {
	requestID  string
	generation uint64
}

type cleanupAction struct{}

type countAction struct {
	reply chan int
}

func (a registerAction) apply(r *Registry) bool {
	a.accepted <- r.register(a.requestID, a.handle, a.payload)
	return false
}

func (a registerAction) rejected(r *Registry) {
	a.accepted <- false
	r.invoke(a.requestID, a.handle, resolution{
		code: types.CodeServiceDestroyed,
		body: types.ErrorJSON(types.CodeServiceDestroyed, "callback registry is shut down", a.requestID),
	})
}

func (a completeAction) apply(r *Registry) bool {
	r.resolve(a.requestID, resolution{body: a.response})
	return false
}

func (completeAction) rejected(*Registry) {}

func (a errorAction) apply(r *Registry) bool {
	r.resolve(a.requestID, resolution{
		code: a.code,
		body: types.ErrorJSON(a.code, a.message, a.requestID),
	})
	return false
}

func (errorAction) rejected(*Registry) {}

func (a timeoutAction) apply(r *Registry) bool {
	r.expire(a.requestID, a.generation)
	return false
}

func (timeoutAction) rejected(*Registry) {}

func (cleanupAction) apply(r *Registry) bool {
	r.destroyAll()
	return true
}

func (cleanupAction) rejected(*Registry) {}

func (a countAction) apply(r *Registry) bool {
	a.reply <- len(r.pending)
	return false
}

func (a countAction) rejected(*Registry) {
	a.reply <- 0
}
