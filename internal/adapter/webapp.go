package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/registry"
	"github.com/GriffinCanCode/walletbridge/internal/runtime"
	"github.com/GriffinCanCode/walletbridge/internal/sandbox"
	"github.com/GriffinCanCode/walletbridge/internal/shared/paths"
	"github.com/GriffinCanCode/walletbridge/internal/shared/types"
)

// ErrNotWebApp means the app's manifest does not declare type webapp
var ErrNotWebApp = errors.New("app is not a webapp")

// WebAppOptions configures a hosted web mini-app
type WebAppOptions struct {
	AppsDir string
	AppID   string
	// Catalog, when set, supplies the manifest instead of reading it
	Catalog *registry.Catalog
	Router  sandbox.Requester
	Config  sandbox.Config
	Logger  *zap.Logger
}

// WebApp is one web mini-app running in a caller-role script context
type WebApp struct {
	appID  string
	loop   *runtime.Looper
	ctx    *sandbox.Context
	logger *zap.Logger
}

type forwarder struct {
	router sandbox.Requester
}

// RequestTransaction implements sandbox.Requester
func (f forwarder) RequestTransaction(requestJSON string, cb types.Callback) {
	f.router.RequestTransaction(requestJSON, humanize(cb))
}

// OpenWebApp loads the app's main page on a fresh loop
func OpenWebApp(ctx context.Context, opts WebAppOptions) (*WebApp, error) {
	if opts.Router == nil {
		return nil, errors.New("router is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if err := paths.ValidateAppID(opts.AppID); err != nil {
		return nil, err
	}

	app := paths.AppPath(opts.AppsDir, opts.AppID)
	manifest, err := webAppManifest(opts.Catalog, app)
	if err != nil {
		return nil, err
	}

	w := &WebApp{
		appID:  opts.AppID,
		loop:   runtime.NewLooper(opts.Logger),
		logger: opts.Logger.Named("webapp").With(zap.String("app_id", opts.AppID)),
	}

	err = w.loop.Call(ctx, func() error {
		sc, err := sandbox.NewContext(sandbox.Options{
			AppDir:    app.Dir(),
			Manifest:  manifest,
			Role:      sandbox.RoleCaller,
			Loop:      w.loop,
			Config:    opts.Config,
			Logger:    opts.Logger,
			Requester: forwarder{router: opts.Router},
		})
		if err != nil {
			return err
		}
		w.ctx = sc
		return sc.Load()
	})
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("open webapp %s: %w", opts.AppID, err)
	}

	w.logger.Info("Web app opened", zap.String("page", manifest.MainPage))
	return w, nil
}

func webAppManifest(catalog *registry.Catalog, app paths.App) (*types.Manifest, error) {
	var manifest *types.Manifest
	if catalog != nil {
		if m, ok := catalog.Get(app.ID); ok {
			manifest = m
		}
	}
	if manifest == nil {
		m, err := registry.LoadManifest(app)
		if err != nil {
			return nil, err
		}
		manifest = m
	}
	if manifest.Type != types.AppTypeWebApp {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotWebApp, app.ID, manifest.Type)
	}
	return manifest, nil
}

// AppID returns the hosted app's id
func (w *WebApp) AppID() string { return w.appID }

// Eval runs source in the app's context and returns the result as JSON.
// Hosts use it to trigger app actions.
func (w *WebApp) Eval(ctx context.Context, name, source string) (string, error) {
	var out string
	err := w.loop.Call(ctx, func() error {
		v, err := w.ctx.Run(name, source)
		if err != nil {
			return err
		}
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			out = "null"
			return nil
		}
		out, err = sonic.MarshalString(v.Export())
		return err
	})
	return out, err
}

// Console returns the app's captured console output
func (w *WebApp) Console(ctx context.Context) ([]sandbox.LogEntry, error) {
	var out []sandbox.LogEntry
	err := w.loop.Call(ctx, func() error {
		out = w.ctx.Console()
		return nil
	})
	return out, err
}

// Close tears the context down on its loop and stops the loop
func (w *WebApp) Close() {
	w.loop.Post(func() {
		if w.ctx != nil {
			w.ctx.Close()
		}
	})
	w.loop.Stop()
}
