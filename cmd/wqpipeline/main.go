// Command wqpipeline runs the lake water quality analysis as a service: it
// repeats the analysis every RUN_INTERVAL and serves health, readiness,
// metrics and the latest summary over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/lake-water-quality/internal/adapter/httpadapter"
	"github.com/couchcryptid/lake-water-quality/internal/app"
	"github.com/couchcryptid/lake-water-quality/internal/config"
	"github.com/couchcryptid/lake-water-quality/internal/observability"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, a.Pipeline, a.Pipeline, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start analysis pipeline. A one-shot run stops the service when it ends.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Pipeline.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	// The run may still be submitting exports; drain only once it has returned.
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Error("pipeline did not stop before shutdown timeout")
	}
	if err := a.Close(); err != nil {
		logger.Error("export shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
