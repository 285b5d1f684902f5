package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/archivus/docflow/internal/app/config"
	appservices "github.com/archivus/docflow/internal/app/services"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/archivus/docflow/internal/observability/tracing"
	"github.com/archivus/docflow/pkg/logger"
)

// The worker moves workflow events from the queue into in-app notifications.
func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	log = logger.NewFromString(cfg.LogLevel).With("component", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, log.Logger,
		cfg.Observability.OTLPEndpoint, cfg.Observability.ServiceName+"-worker", cfg.Environment)
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.GetDatabaseURL())
	if err != nil {
		log.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}

	sm, err := appservices.NewServiceManager(cfg, db, log)
	if err != nil {
		log.Error("Failed to initialize service manager", "error", err)
		os.Exit(1)
	}
	defer sm.Close()

	if err := sm.HealthCheck(ctx); err != nil {
		log.Error("Service health check failed", "error", err)
		os.Exit(1)
	}

	log.Info("Event worker started",
		"poll_interval", cfg.Worker.PollInterval,
		"batch_size", cfg.Worker.BatchSize)

	if err := sm.NewDrainer(log).Run(ctx, cfg.Worker.PollInterval); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Event worker stopped", "error", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Error("Failed to flush traces", "error", err)
	}
	log.Info("Event worker stopped gracefully")
}
