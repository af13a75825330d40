// Package main is the entrypoint for the mindvault API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgestack/mindvault/internal/api"
	"github.com/forgestack/mindvault/internal/api/handler"
	mw "github.com/forgestack/mindvault/internal/api/middleware"
	"github.com/forgestack/mindvault/internal/api/response"
	"github.com/forgestack/mindvault/internal/config"
	"github.com/forgestack/mindvault/internal/jobs"
	"github.com/forgestack/mindvault/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to the job store
	jobStore, err := store.NewRedisStore(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis store: %w", err)
	}
	defer jobStore.Close()

	if err := jobStore.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 3. Build the queue orchestrator
	queue := jobs.NewQueue(jobStore, jobs.Config{
		JobTTL:        cfg.Jobs.JobTTL,
		ResultTTL:     cfg.Jobs.ResultTTL,
		MaxRetries:    cfg.Jobs.MaxRetries,
		RetryDelay:    cfg.Jobs.RetryDelay,
		MaxRetryDelay: cfg.Jobs.MaxRetryDelay,
	}, slog.Default().With("component", "jobs"))

	// 4. Build router with dependencies
	auth := mw.NewAuth(cfg.Auth.JWTSecret)
	rateLimit := mw.NewRateLimit(jobStore, cfg.Server.RequestsPerMinute)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(jobStore),

		GetJobHandler:    handler.NewGetJobHandler(queue),
		ListJobsHandler:  handler.NewListJobsHandler(queue),
		CancelJobHandler: handler.NewCancelJobHandler(queue),
		DeleteJobHandler: handler.NewDeleteJobHandler(queue, jobStore, store.JobKey),

		IngestFileHandler:      handler.NewIngestFileHandler(queue),
		IngestTextHandler:      handler.NewIngestTextHandler(queue),
		BatchIngestHandler:     handler.NewBatchIngestHandler(queue),
		ReindexHandler:         handler.NewReindexHandler(queue),
		DeleteDocumentsHandler: handler.NewDeleteDocumentsHandler(queue),
	}

	router := api.NewRouter(deps)

	// 5. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks job store connectivity.
func healthHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Ping(r.Context()); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"Job store unavailable", map[string]string{"store": "degraded"})
			return
		}
		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": map[string]string{"store": "ok"},
		})
	}
}
