package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"

	"github.com/GriffinCanCode/walletbridge/internal/grpc"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/walletbridge/internal/registry"
	"github.com/GriffinCanCode/walletbridge/internal/runtime"
	"github.com/GriffinCanCode/walletbridge/internal/sandbox"
)

// Runtime is the blockchain runtime process: the script host behind the
// RuntimeService listener
type Runtime struct {
	process *runtime.Process
	rpc     *grpc.Server
	lis     net.Listener
	metrics *http.Server
	tracer  *tracing.Tracer
	logger  *logging.Logger
}

// NewRuntime builds the runtime process and binds its listener
func NewRuntime(cfg *config.Config, logger *logging.Logger) (*Runtime, error) {
	logger.Info("Initializing blockchain runtime",
		zap.String("addr", cfg.Runtime.Address),
		zap.String("apps_dir", cfg.Runtime.AppsDir),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := monitoring.NewMetrics(reg)
	tracer := tracing.New("runtime", logger.Component("tracing"))

	catalog := registry.NewCatalog(cfg.Runtime.AppsDir, logger.Logger)
	if _, err := catalog.Refresh(context.Background()); err != nil {
		logger.Warn("Failed to scan apps", zap.Error(err))
	}

	sandboxCfg := sandbox.DefaultConfig()
	if cfg.Runtime.ScriptTimeout > 0 {
		sandboxCfg.Timeout = cfg.Runtime.ScriptTimeout
	}
	process := runtime.New(runtime.Options{
		AppsDir:         cfg.Runtime.AppsDir,
		Catalog:         catalog,
		CallbackTimeout: cfg.Runtime.CallbackTimeout,
		Sandbox:         sandboxCfg,
		Logger:          logger.Logger,
		Metrics:         metrics,
	})

	lis, err := grpc.Listen(cfg.Runtime.Address)
	if err != nil {
		process.Close()
		tracer.Close()
		return nil, err
	}

	r := &Runtime{
		process: process,
		rpc: grpc.NewServer(process, grpc.ServerOptions{
			Logger:  logger.Logger,
			Metrics: metrics,
			Tracer:  tracer,
		}),
		lis:    lis,
		tracer: tracer,
		logger: logger,
	}
	if cfg.Runtime.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		r.metrics = &http.Server{
			Addr:              cfg.Runtime.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	logger.Info("Runtime initialized successfully", zap.Int("apps", len(catalog.List(""))))
	return r, nil
}

// Addr returns the bound RuntimeService address
func (r *Runtime) Addr() net.Addr { return r.lis.Addr() }

// Process returns the hosted runtime process
func (r *Runtime) Process() *runtime.Process { return r.process }

// Run serves RuntimeService until Shutdown
func (r *Runtime) Run() error {
	if r.metrics != nil {
		go func() {
			r.logger.Info("Serving runtime metrics", zap.String("addr", r.metrics.Addr))
			if err := r.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}
	if err := r.rpc.Serve(r.lis); err != nil && !errors.Is(err, gogrpc.ErrServerStopped) {
		return fmt.Errorf("runtime service: %w", err)
	}
	return nil
}

// Shutdown resolves every pending request with SERVICE_DESTROYED, so
// blocked ProcessRequest calls return before the listener drains.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.logger.Info("Shutting down runtime...")

	r.process.Close()
	r.rpc.Stop(ctx)

	var err error
	if r.metrics != nil {
		err = r.metrics.Shutdown(ctx)
	}
	r.tracer.Close()

	_ = r.logger.Sync()
	return err
}
