package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/walletbridge/internal/runtime"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

// ErrSwitchRejected means the runtime refused a blockchain id, as opposed
// to the switch failing in transport.
var ErrSwitchRejected = errors.New("blockchain switch rejected")

// Runtime is the router's view of the blockchain runtime process
type Runtime interface {
	// Connected reports whether the transport is currently usable
	Connected() bool
	SwitchBlockchain(ctx context.Context, blockchainID string) error
	ActiveBlockchainID(ctx context.Context) (string, error)
	IsReady(ctx context.Context) (bool, error)
	// ProcessRequest forwards requestJSON. When it returns nil, cb will be
	// invoked exactly once; when it returns an error, cb was not used.
	ProcessRequest(ctx context.Context, requestJSON string, cb types.Callback) error
}

// Local binds a Router to a runtime process in the same OS process
type Local struct {
	Process *runtime.Process
}

// Connected implements Runtime
func (l Local) Connected() bool { return l.Process != nil }

// SwitchBlockchain implements Runtime
func (l Local) SwitchBlockchain(_ context.Context, blockchainID string) error {
	err := l.Process.SwitchBlockchain(blockchainID)
	if err == nil || errors.Is(err, runtime.ErrClosed) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrSwitchRejected, err)
}

// ActiveBlockchainID implements Runtime
func (l Local) ActiveBlockchainID(context.Context) (string, error) {
	return l.Process.ActiveBlockchainID(), nil
}

// IsReady implements Runtime
func (l Local) IsReady(context.Context) (bool, error) {
	return l.Process.IsReady(), nil
}

// ProcessRequest implements Runtime
func (l Local) ProcessRequest(_ context.Context, requestJSON string, cb types.Callback) error {
	l.Process.ProcessRequest(requestJSON, cb)
	return nil
}
