package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/walletbridge/internal/infrastructure/server"
)

func main() {
	addr := flag.String("addr", "", "Runtime listen address (overrides RUNTIME_ADDR)")
	apps := flag.String("apps", "", "Installed mini-apps directory (overrides APPS_DIR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Runtime.Address = *addr
	}
	if *apps != "" {
		cfg.Runtime.AppsDir = *apps
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Process:     "runtime",
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	rt, err := server.NewRuntime(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create runtime", zap.Error(err))
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- rt.Run()
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down gracefully", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			logger.Error("Runtime service error", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
}
