package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/trendplate/internal/api"
	"github.com/timmy/trendplate/internal/api/handler"
	"github.com/timmy/trendplate/internal/app"
	"github.com/timmy/trendplate/internal/config"
	"github.com/timmy/trendplate/internal/logger"
)

func main() {
	// Initialize logger first, configured from LOG_* env vars
	appLogger := logger.New(logger.LoadFromEnv("trendplate-api"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx := context.Background()
	components, err := app.New(ctx, cfg, cfg.ETL.Source, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer components.Close()

	deps := api.RouterDeps{
		Jobs:      components.Ledger,
		Errors:    components.Errors,
		Stats:     components.Recovery,
		Logger:    appLogger,
		Templates: components.Templates,
	}
	if components.ETL != nil {
		deps.Runner = components.ETL
	}
	if components.Archive != nil {
		deps.Archive = components.Archive
	}
	if sqlDB, err := components.DB.DB(); err == nil {
		deps.DB = sqlDB
	}

	router, jobHandler := api.SetupRouter(deps, cfg.Server.Mode, cfg.Server.CORSOrigins)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":   cfg.Server.Port,
			"mode":   cfg.Server.Mode,
			"source": cfg.ETL.Source,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	waitForRuns(jobHandler, appLogger)
	appLogger.Info("Server exited")
}

// waitForRuns gives triggered jobs a bounded window to reach a terminal state.
func waitForRuns(h *handler.JobHandler, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		h.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn("Triggered jobs still running at exit")
	}
}
