package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/shared/id"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

// Options configures a script context
type Options struct {
	AppDir   string
	Manifest *types.Manifest
	Role     Role
	Loop     Scheduler
	Config   Config
	Logger   *zap.Logger

	// OnResponse receives sendTransactionResponse/sendUniversalResponse
	// calls from signer contexts.
	OnResponse ResponseFunc
	// Requester receives requestTransaction calls from caller contexts
	Requester Requester
	// OnNavigate observes allowed navigations after the page has loaded
	OnNavigate func(page string, err error)
}

type listener struct {
	value goja.Value
	fn    goja.Callable
}

// Context is one isolated script world bound to a single app origin
type Context struct {
	id       id.ContextID
	appID    string
	origin   string
	manifest *types.Manifest
	role     Role
	loop     Scheduler
	config   Config
	logger   *zap.Logger

	assets    *Assets
	navigator *Navigator

	onResponse ResponseFunc
	requester  Requester
	onNavigate func(string, error)

	vm        *goja.Runtime
	listeners map[string][]listener
	timers    map[int64]*time.Timer
	nextTimer int64
	console   []LogEntry
	page      string
	closed    bool
}

// NewContext builds a context and its globals. No script runs until Load.
func NewContext(opts Options) (*Context, error) {
	if opts.Manifest == nil {
		return nil, errors.New("manifest is required")
	}
	if opts.Loop == nil {
		return nil, errors.New("scheduler is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Config.Timeout <= 0 {
		opts.Config = DefaultConfig()
	}

	assets, err := NewAssets(opts.AppDir)
	if err != nil {
		return nil, err
	}

	m := opts.Manifest
	contextID := id.NewContextID()
	logger := opts.Logger.Named("sandbox").With(
		zap.String("context_id", contextID.String()),
		zap.String("app_id", m.AppID),
		zap.String("role", opts.Role.String()))

	c := &Context{
		id:         contextID,
		appID:      m.AppID,
		origin:     Origin(m.AppID),
		manifest:   m,
		role:       opts.Role,
		loop:       opts.Loop,
		config:     opts.Config,
		logger:     logger,
		assets:     assets,
		navigator:  NewNavigator(m.AppID, m.MainPage, m.Pages, logger),
		onResponse: opts.OnResponse,
		requester:  opts.Requester,
		onNavigate: opts.OnNavigate,
	}
	if err := c.reset(); err != nil {
		return nil, err
	}
	return c, nil
}

// ID distinguishes this context from earlier ones for the same app
func (c *Context) ID() id.ContextID { return c.id }

// AppID returns the app this context belongs to
func (c *Context) AppID() string { return c.appID }

// Origin returns the synthetic origin of the context
func (c *Context) Origin() string { return c.origin }

// Manifest returns the manifest the context was built from
func (c *Context) Manifest() *types.Manifest { return c.manifest }

// Assets returns the context's asset resolver
func (c *Context) Assets() *Assets { return c.assets }

// Page returns the currently loaded page
func (c *Context) Page() string { return c.page }

// AppInfo describes the app as scripts see it
func (c *Context) AppInfo() types.AppInfo {
	return types.AppInfo{
		AppID:   c.manifest.AppID,
		Name:    c.manifest.Name,
		Version: c.manifest.Version,
		Type:    string(c.manifest.Type),
		Origin:  c.origin,
	}
}

// Load runs the manifest's main page
func (c *Context) Load() error {
	return c.LoadPage(c.manifest.MainPage)
}

// LoadPage replaces the script world with a fresh one and runs page
func (c *Context) LoadPage(page string) error {
	if c.closed {
		return ErrContextClosed
	}

	scripts, err := PageScripts(c.appID, c.assets, page)
	if err != nil {
		return fmt.Errorf("load page %s: %w", page, err)
	}
	if c.page != "" {
		if err := c.reset(); err != nil {
			return err
		}
	}
	c.page = page

	for _, s := range scripts {
		if _, err := c.Run(s.Name, s.Source); err != nil {
			return fmt.Errorf("run %s: %w", s.Name, err)
		}
	}
	c.logger.Debug("Page loaded", zap.String("page", page), zap.Int("scripts", len(scripts)))
	return nil
}

// Run executes source under the per-call timeout
func (c *Context) Run(name, source string) (goja.Value, error) {
	if c.closed {
		return nil, ErrContextClosed
	}
	return c.guard(func() (goja.Value, error) {
		prg, err := goja.Compile(name, source, false)
		if err != nil {
			return nil, err
		}
		return c.vm.RunProgram(prg)
	})
}

// Dispatch delivers an event {type, detail} to every listener of eventType
// and returns how many listeners ran. A throwing listener stops delivery.
func (c *Context) Dispatch(eventType string, detail interface{}) (int, error) {
	if c.closed {
		return 0, ErrContextClosed
	}

	current := append([]listener(nil), c.listeners[eventType]...)
	if len(current) == 0 {
		return 0, nil
	}

	event := c.vm.NewObject()
	_ = event.Set("type", eventType)
	_ = event.Set("detail", detail)

	for i, l := range current {
		if _, err := c.guard(func() (goja.Value, error) {
			return l.fn(goja.Undefined(), event)
		}); err != nil {
			return i, fmt.Errorf("%s listener: %w", eventType, err)
		}
	}
	return len(current), nil
}

// HasListener reports whether any listener is registered for eventType
func (c *Context) HasListener(eventType string) bool {
	return len(c.listeners[eventType]) > 0
}

// Console returns captured console output
func (c *Context) Console() []LogEntry {
	return append([]LogEntry(nil), c.console...)
}

// Close stops timers and detaches the script world. Later calls fail with
// ErrContextClosed and pending async results are dropped.
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.stopTimers()
	c.listeners = nil
	c.logger.Debug("Context closed")
}

// Closed reports whether Close has run
func (c *Context) Closed() bool { return c.closed }

// guard runs fn with the execution timeout armed
func (c *Context) guard(fn func() (goja.Value, error)) (goja.Value, error) {
	vm := c.vm
	if c.config.Timeout <= 0 {
		return fn()
	}

	fired := make(chan struct{})
	timer := time.AfterFunc(c.config.Timeout, func() {
		vm.Interrupt(ErrScriptTimeout)
		close(fired)
	})
	val, err := fn()
	if !timer.Stop() {
		<-fired
	}
	vm.ClearInterrupt()

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		c.logger.Warn("Script interrupted", zap.Duration("timeout", c.config.Timeout))
		return nil, ErrScriptTimeout
	}
	return val, err
}

// reset builds a fresh VM with sandbox globals
func (c *Context) reset() error {
	c.stopTimers()
	c.vm = goja.New()
	c.listeners = make(map[string][]listener)
	c.timers = make(map[int64]*time.Timer)

	if c.config.MaxCallStackSize > 0 {
		c.vm.SetMaxCallStackSize(c.config.MaxCallStackSize)
	}
	return c.setupGlobals()
}

// setupGlobals configures global objects and security
func (c *Context) setupGlobals() error {
	vm := c.vm

	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	if c.config.EnableConsole {
		console := vm.NewObject()
		for _, level := range []string{"log", "info", "warn", "error", "debug"} {
			_ = console.Set(level, c.makeConsoleFunc(level))
		}
		_ = vm.Set("console", console)
	}

	_ = vm.Set("setTimeout", c.setTimeout)
	_ = vm.Set("clearTimeout", c.clearTimeout)
	_ = vm.Set("setInterval", goja.Undefined())
	_ = vm.Set("addEventListener", c.addEventListener)
	_ = vm.Set("removeEventListener", c.removeEventListener)

	location := vm.NewObject()
	_ = location.Set("origin", c.origin)
	_ = vm.Set("location", location)

	return vm.Set("WalletBridge", c.newBridge())
}

// makeConsoleFunc creates a console function
func (c *Context) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		c.capture(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (c *Context) capture(level, msg string) {
	c.console = append(c.console, LogEntry{Level: level, Message: msg, Time: time.Now()})
	if limit := c.config.ConsoleLimit; limit > 0 && len(c.console) > limit {
		c.console = c.console[len(c.console)-limit:]
	}
	c.logger.Debug("Script console", zap.String("level", level), zap.String("message", msg))
}

func (c *Context) addEventListener(call goja.FunctionCall) goja.Value {
	eventType := call.Argument(0).String()
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		panic(c.vm.NewTypeError("addEventListener: listener is not a function"))
	}
	c.listeners[eventType] = append(c.listeners[eventType], listener{value: call.Argument(1), fn: fn})
	return goja.Undefined()
}

func (c *Context) removeEventListener(call goja.FunctionCall) goja.Value {
	eventType := call.Argument(0).String()
	target := call.Argument(1)
	kept := c.listeners[eventType][:0]
	for _, l := range c.listeners[eventType] {
		if !l.value.SameAs(target) {
			kept = append(kept, l)
		}
	}
	c.listeners[eventType] = kept
	return goja.Undefined()
}

func (c *Context) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(c.vm.NewTypeError("setTimeout: callback is not a function"))
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	c.nextTimer++
	timerID := c.nextTimer
	vm := c.vm
	c.timers[timerID] = time.AfterFunc(delay, func() {
		c.loop.Post(func() {
			// A reload swaps the VM; timers from the old world must not run
			if c.closed || c.vm != vm {
				return
			}
			if _, live := c.timers[timerID]; !live {
				return
			}
			delete(c.timers, timerID)
			if _, err := c.guard(func() (goja.Value, error) {
				return fn(goja.Undefined(), args...)
			}); err != nil {
				c.logger.Warn("Timer callback failed", zap.Error(err))
			}
		})
	})
	return c.vm.ToValue(timerID)
}

func (c *Context) clearTimeout(call goja.FunctionCall) goja.Value {
	timerID := call.Argument(0).ToInteger()
	if t, ok := c.timers[timerID]; ok {
		t.Stop()
		delete(c.timers, timerID)
	}
	return goja.Undefined()
}

func (c *Context) stopTimers() {
	for timerID, t := range c.timers {
		t.Stop()
		delete(c.timers, timerID)
	}
}

// jsonArgument accepts either a JSON string or a plain object from script
func (c *Context) jsonArgument(v goja.Value) (string, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", errors.New("missing JSON argument")
	}
	if s, ok := v.Export().(string); ok {
		return s, nil
	}
	return sonic.MarshalString(v.Export())
}

// toJSValue parses JSON into a script value, falling back to the raw string
func (c *Context) toJSValue(raw string) goja.Value {
	var decoded interface{}
	if err := sonic.UnmarshalString(raw, &decoded); err != nil {
		return c.vm.ToValue(raw)
	}
	return c.vm.ToValue(decoded)
}
