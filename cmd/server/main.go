package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DukeRupert/designaudit/internal"
	"github.com/DukeRupert/designaudit/internal/app"
	"github.com/DukeRupert/designaudit/internal/metrics"
	"github.com/DukeRupert/designaudit/internal/middleware"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	pipeline, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	// ==========================================================================
	// Operational endpoints
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := pipeline.Health(r.Context()); err != nil {
			logger.Warn("health check failed", "error", err)
			http.Error(w, "UNAVAILABLE", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	metricsAuth := middleware.NewBasicAuth("metrics", cfg.MetricsUsername, cfg.MetricsPassword)
	if !metricsAuth.Enabled() {
		logger.Warn("metrics endpoint is not protected, set METRICS_USERNAME and METRICS_PASSWORD")
	}
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	requestLogger := middleware.NewRequestLogger(logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           metrics.Middleware(requestLogger.Handler(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// Start server in goroutine
	go func() {
		logger.Info("server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
		}
	}()

	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			break
		}
		// SIGHUP reloads rule definitions; a failed reload keeps the current set.
		if err := pipeline.Engine.Reload(); err != nil {
			logger.Error("rule reload failed", "error", err)
		}
	}
	logger.Info("shutdown signal received, initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
