package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/adapter"
	api "github.com/GriffinCanCode/walletbridge/internal/api/http"
	"github.com/GriffinCanCode/walletbridge/internal/api/middleware"
	"github.com/GriffinCanCode/walletbridge/internal/api/ws"
	"github.com/GriffinCanCode/walletbridge/internal/bridge"
	"github.com/GriffinCanCode/walletbridge/internal/grpc"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/walletbridge/internal/keystore"
	"github.com/GriffinCanCode/walletbridge/internal/registry"
	"github.com/GriffinCanCode/walletbridge/internal/sandbox"
	"github.com/GriffinCanCode/walletbridge/internal/session"
)

// Server is the router process: the bridge router, its connection to the
// runtime and the browser-facing HTTP surface
type Server struct {
	engine  *gin.Engine
	http    *http.Server
	router  *bridge.Router
	client  *grpc.Client
	session *session.Session
	catalog *registry.Catalog
	webapps *adapter.Host
	tracer  *tracing.Tracer
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
	started time.Time
}

// NewServer creates a new router process
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	logger.Info("Initializing wallet bridge router",
		zap.String("port", cfg.Server.Port),
		zap.String("runtime_addr", cfg.Runtime.Address),
	)

	// Metrics first, everything below records into them
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)
	tracer := tracing.New("router", logger.Component("tracing"))

	client, err := grpc.Dial(dialTarget(cfg.Runtime.Address), grpc.ClientOptions{
		Logger: logger.Logger,
		Tracer: tracer,
	})
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create runtime client: %w", err)
	}

	strength := keystore.StrengthStandard
	if cfg.Keystore.Light {
		strength = keystore.StrengthLight
	}
	sess := session.New(session.FileStore{Path: cfg.Keystore.UnlockSecretPath}, strength, logger.Logger)

	routerOpts := bridge.Options{
		Session:     sess,
		Strength:    strength,
		CallTimeout: cfg.Runtime.DialTimeout,
		Logger:      logger.Logger,
		Metrics:     metrics,
	}
	if cfg.RateLimit.Enabled {
		routerOpts.RequestsPerSecond = bridge.DefaultRPS
		routerOpts.Burst = bridge.DefaultBurst
	}
	router := bridge.New(routerOpts)
	router.Bind(client)

	// The router only reads manifests; the runtime owns execution
	catalog := registry.NewCatalog(cfg.Runtime.AppsDir, logger.Logger)
	if _, err := catalog.Refresh(context.Background()); err != nil {
		logger.Warn("Failed to scan apps", zap.Error(err))
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(tracing.HTTPMiddleware(tracer))
	engine.Use(monitoring.Middleware(metrics))
	engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowedOrigins,
		MaxAge:       middleware.DefaultCORSConfig().MaxAge,
	}))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		engine.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	// Web mini-apps run here, in caller-role contexts that reach the
	// runtime only through the router
	sandboxCfg := sandbox.DefaultConfig()
	if cfg.Runtime.ScriptTimeout > 0 {
		sandboxCfg.Timeout = cfg.Runtime.ScriptTimeout
	}
	webapps := adapter.NewHost(adapter.HostOptions{
		AppsDir: cfg.Runtime.AppsDir,
		Catalog: catalog,
		Router:  router,
		Config:  sandboxCfg,
		Logger:  logger.Logger,
	})

	s := &Server{
		engine:  engine,
		router:  router,
		client:  client,
		session: sess,
		catalog: catalog,
		webapps: webapps,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		started: time.Now(),
	}

	handlers := api.NewHandlers(router, sess, catalog, logger.Logger).WithWebApps(webapps)
	wsHandler := ws.NewHandler(router, ws.Options{
		AllowOrigins: cfg.Server.AllowedOrigins,
		Logger:       logger.Logger,
	})

	// Register routes
	engine.GET("/health", s.health)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	engine.GET("/ws", wsHandler.HandleConnection)
	handlers.Register(engine.Group("/api/v1"))

	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Router initialized successfully", zap.Int("apps", len(catalog.List(""))))
	return s, nil
}

// Handler returns the HTTP handler. Responses are gzip-compressed except
// WebSocket upgrades, which need the raw connection.
func (s *Server) Handler() http.Handler {
	gz := gzhttp.GzipHandler(s.engine)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.engine.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

// Router returns the bridge router
func (s *Server) Router() *bridge.Router { return s.router }

// Run serves HTTP until Shutdown
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, fails everything still routed with
// SERVICE_DESTROYED and closes the runtime connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down router...")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	s.webapps.CloseAll()
	s.router.Unbind()
	s.router.Close()
	s.session.Lock()
	if err := s.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close runtime client: %w", err))
	}
	s.tracer.Close()

	// Sync logger before exit
	_ = s.logger.Sync()
	return errors.Join(errs...)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	serving, err := s.client.Healthy(ctx)
	status := "ok"
	if !serving {
		status = "degraded"
	}
	body := gin.H{
		"status":  status,
		"runtime": serving,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// dialTarget turns a configured address into a gRPC target
func dialTarget(address string) string {
	if strings.HasPrefix(address, "unix:") {
		return address
	}
	return "passthrough:///" + address
}
