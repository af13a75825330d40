// Package main is the entrypoint for the mindvault background worker. It
// drains the dispatch queues and executes ingestion jobs until signalled.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/forgestack/mindvault/internal/config"
	"github.com/forgestack/mindvault/internal/ingest"
	"github.com/forgestack/mindvault/internal/jobs"
	"github.com/forgestack/mindvault/internal/store"
	"github.com/forgestack/mindvault/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobStore, err := store.NewRedisStore(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis store: %w", err)
	}
	defer jobStore.Close()

	if err := jobStore.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	queue := jobs.NewQueue(jobStore, jobs.Config{
		JobTTL:        cfg.Jobs.JobTTL,
		ResultTTL:     cfg.Jobs.ResultTTL,
		MaxRetries:    cfg.Jobs.MaxRetries,
		RetryDelay:    cfg.Jobs.RetryDelay,
		MaxRetryDelay: cfg.Jobs.MaxRetryDelay,
	}, slog.Default().With("component", "jobs"))

	pipeline := ingest.NewHTTPPipeline(cfg.Indexer.BaseURL, cfg.Indexer.Timeout)
	executors := ingest.NewExecutors(pipeline, queue, slog.Default().With("component", "ingest"))

	pool := worker.NewPool(queue, executors.Registry(), worker.Config{
		MaxConcurrent: cfg.Worker.MaxConcurrentJobs,
		PollInterval:  cfg.Worker.PollInterval,
	}, slog.Default().With("component", "worker"))

	// Blocks until the signal context is cancelled, then waits for
	// in-flight jobs before returning.
	return pool.Run(ctx)
}
