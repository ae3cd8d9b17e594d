package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prompthub/backend/internal/app"
	"prompthub/backend/internal/bootstrap"
	appLogger "prompthub/backend/internal/infra/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := appLogger.Init(); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer appLogger.Sync()

	logger := appLogger.S()

	resources, err := app.Bootstrap(ctx)
	if err != nil {
		logger.Fatalw("bootstrap failed", "error", err)
	}
	defer func() {
		if err := resources.Close(); err != nil {
			logger.Errorw("resource cleanup error", "error", err)
		}
	}()

	application, err := bootstrap.BuildApplication(ctx, logger, resources)
	if err != nil {
		logger.Fatalw("build application failed", "error", err)
	}

	srv := &http.Server{
		Addr:              ":" + resources.Config.Port,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infow("http server listening", "addr", srv.Addr, "db_driver", resources.Config.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("graceful shutdown failed", "error", err)
	}
}
