package adapter

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/registry"
	"github.com/GriffinCanCode/walletbridge/internal/sandbox"
)

// ErrHostClosed is returned by Open after Close
var ErrHostClosed = errors.New("webapp host closed")

// HostOptions configures a Host. Every app it opens shares them.
type HostOptions struct {
	AppsDir string
	Catalog *registry.Catalog
	Router  sandbox.Requester
	Config  sandbox.Config
	Logger  *zap.Logger
}

// Host keeps at most one open WebApp per app id for the router process
type Host struct {
	opts   HostOptions
	logger *zap.Logger

	mu     sync.Mutex
	apps   map[string]*WebApp
	closed bool
}

// NewHost creates an empty host
func NewHost(opts HostOptions) *Host {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Host{
		opts:   opts,
		logger: opts.Logger.Named("webapps"),
		apps:   make(map[string]*WebApp),
	}
}

// Open returns the running instance of appID, loading it first when it
// is not open yet. created reports whether this call loaded it.
func (h *Host) Open(ctx context.Context, appID string) (app *WebApp, created bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, false, ErrHostClosed
	}
	if app, ok := h.apps[appID]; ok {
		return app, false, nil
	}

	app, err = OpenWebApp(ctx, WebAppOptions{
		AppsDir: h.opts.AppsDir,
		AppID:   appID,
		Catalog: h.opts.Catalog,
		Router:  h.opts.Router,
		Config:  h.opts.Config,
		Logger:  h.opts.Logger,
	})
	if err != nil {
		return nil, false, err
	}
	h.apps[appID] = app
	return app, true, nil
}

// Get returns the open instance of appID
func (h *Host) Get(appID string) (*WebApp, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	app, ok := h.apps[appID]
	return app, ok
}

// List returns the ids of open apps in order
func (h *Host) List() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.apps))
	for appID := range h.apps {
		ids = append(ids, appID)
	}
	sort.Strings(ids)
	return ids
}

// Close shuts appID down. It reports false when appID was not open.
func (h *Host) Close(appID string) bool {
	h.mu.Lock()
	app, ok := h.apps[appID]
	delete(h.apps, appID)
	h.mu.Unlock()

	if ok {
		app.Close()
		h.logger.Info("Web app closed", zap.String("app_id", appID))
	}
	return ok
}

// CloseAll shuts every open app down and rejects later opens
func (h *Host) CloseAll() {
	h.mu.Lock()
	apps := h.apps
	h.apps = make(map[string]*WebApp)
	h.closed = true
	h.mu.Unlock()

	for _, app := range apps {
		app.Close()
	}
	if len(apps) > 0 {
		h.logger.Info("Web apps closed", zap.Int("count", len(apps)))
	}
}
