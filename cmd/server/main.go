package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/archivus/docflow/internal/app/config"
	"github.com/archivus/docflow/internal/app/server"
	appservices "github.com/archivus/docflow/internal/app/services"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/archivus/docflow/internal/observability/tracing"
	"github.com/archivus/docflow/pkg/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	log = logger.NewFromString(cfg.LogLevel)

	shutdownTracing, err := tracing.Init(context.Background(), log.Logger,
		cfg.Observability.OTLPEndpoint, cfg.Observability.ServiceName, cfg.Environment)
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

	srv := server.New(cfg, log, sm)

	go func() {
		log.Info("Starting docflow server", "port", cfg.Server.Port, "environment", cfg.Environment)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := sm.Close(); err != nil {
		log.Error("Failed to close services", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Error("Failed to flush traces", "error", err)
	}

	log.Info("Server shutdown complete")
}
