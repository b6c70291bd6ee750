package sandbox

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

var (
	ErrAssetNotFound   = errors.New("asset not found")
	ErrAssetTooLarge   = errors.New("asset exceeds size limit")
	ErrUnsupportedPage = errors.New("unsupported page type")
	ErrContextClosed   = errors.New("script context closed")
	ErrScriptTimeout   = errors.New("script execution timeout exceeded")
)

// Role selects which half of the bridge a context exposes
type Role int

const (
	// RoleSigner hosts a blockchain mini-app that answers transaction requests
	RoleSigner Role = iota
	// RoleCaller hosts a web app that issues transaction requests
	RoleCaller
)

func (r Role) String() string {
	if r == RoleCaller {
		return "caller"
	}
	return "signer"
}

// Config defines sandbox limits
type Config struct {
	Timeout          time.Duration // Per-call execution timeout
	MaxCallStackSize int
	EnableConsole    bool
	ConsoleLimit     int // Entries kept in the console ring
}

// DefaultConfig returns production limits
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		MaxCallStackSize: 1024,
		EnableConsole:    true,
		ConsoleLimit:     200,
	}
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, info, warn, error, debug, bridge
	Message string    // Log message
	Time    time.Time // Timestamp
}

// Scheduler runs functions on the goroutine that owns a Context. Post
// reports false once the scheduler has stopped.
type Scheduler interface {
	Post(fn func()) bool
}

// Requester forwards caller-side transaction requests into the bridge
type Requester interface {
	RequestTransaction(requestJSON string, cb types.Callback)
}

// ResponseFunc receives a signer's answer for requestID
type ResponseFunc func(requestID, responseJSON string)
