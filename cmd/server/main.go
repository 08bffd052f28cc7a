// Command server runs the API as a standalone HTTP server (outside Vercel).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	handler "meeting-todos-backend/api"
	"meeting-todos-backend/pkg/config"
	"meeting-todos-backend/pkg/database"
	"meeting-todos-backend/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.GetCached()
	if err != nil {
		panic(err)
	}
	logger := logging.Must(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.GetDatabase(ctx, cfg.Database(), logger)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}

	provider, err := handler.BuildProvider(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal("failed to create identity provider", zap.Error(err))
	}

	router, err := handler.NewRouter(cfg, db, provider, logger)
	if err != nil {
		logger.Fatal("failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.String("database", cfg.Database().ResolveDriver()),
			zap.String("identity", provider.Name()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	database.CloseAll()
}
