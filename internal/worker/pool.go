// Package worker contains the supervising loop that drains the dispatch
// queues and executes jobs under a concurrency ceiling.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgestack/mindvault/internal/jobs"
	"github.com/forgestack/mindvault/pkg/models"
)

// Config holds worker pool tuning.
type Config struct {
	// MaxConcurrent caps the number of jobs executing at once.
	MaxConcurrent int
	// PollInterval is the sleep between passes over the dispatch queues.
	PollInterval time.Duration
}

// Pool polls the dispatch queues in a single coordinating loop, spawns one
// goroutine per dequeued job, and reports outcomes back through the queue.
type Pool struct {
	queue    *jobs.Queue
	registry Registry
	order    []models.JobType
	cfg      Config
	logger   *slog.Logger
}

type taskResult struct {
	jobID string
	err   error
}

// NewPool creates a Pool draining the types registered in registry.
func NewPool(queue *jobs.Queue, registry Registry, cfg Config, logger *slog.Logger) *Pool {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Pool{
		queue:    queue,
		registry: registry,
		order:    registry.pollOrder(),
		cfg:      cfg,
		logger:   logger,
	}
}

// Run drives the supervising loop until ctx is cancelled, then stops popping
// new work and waits for every in-flight job to finish. In-flight executors
// observe the cancellation through their context; their jobs take the normal
// fail/retry path and are picked up again on the next run.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting",
		"max_concurrent", p.cfg.MaxConcurrent,
		"poll_interval", p.cfg.PollInterval,
		"job_types", len(p.order))

	done := make(chan taskResult)
	active := 0

	for running := true; running; {
		// Reap whatever has finished since the last pass.
		for drained := false; !drained; {
			select {
			case res := <-done:
				active--
				p.reap(res)
			default:
				drained = true
			}
		}

		if active < p.cfg.MaxConcurrent {
			active = p.dispatch(ctx, done, active)
		}

		select {
		case <-ctx.Done():
			running = false
		case res := <-done:
			active--
			p.reap(res)
		case <-time.After(p.cfg.PollInterval):
		}
	}

	if active > 0 {
		p.logger.Info("waiting for active jobs to finish", "active", active)
		for active > 0 {
			res := <-done
			active--
			p.reap(res)
		}
	}

	p.logger.Info("worker pool stopped")
	return nil
}

// reap surfaces errors that escaped a task's own error boundary. These are
// store-level failures; the executor's domain errors never reach here.
func (p *Pool) reap(res taskResult) {
	if res.err != nil {
		p.logger.Error("job task failed", "job_id", res.jobID, "error", res.err)
	}
}

// dispatch polls each type's queue once, in fixed order, spawning tasks
// until the ceiling is reached. Returns the updated active count.
func (p *Pool) dispatch(ctx context.Context, done chan<- taskResult, active int) int {
	for _, jobType := range p.order {
		if active >= p.cfg.MaxConcurrent {
			break
		}

		jobID, ok, err := p.queue.Dequeue(ctx, jobType)
		if err != nil {
			p.logger.Error("dequeue failed", "job_type", jobType, "error", err)
			continue
		}
		if !ok {
			continue
		}

		job, found, err := p.queue.Get(ctx, jobID)
		if err != nil {
			p.logger.Error("loading dequeued job failed", "job_id", jobID, "error", err)
			continue
		}
		if !found {
			p.logger.Warn("dequeued job no longer exists", "job_id", jobID)
			continue
		}
		if job.Status != models.JobStatusPending {
			// Cancelled (or otherwise moved on) between enqueue and
			// dequeue; the identifier is simply dropped.
			p.logger.Warn("skipping dequeued job",
				"job_id", jobID, "status", job.Status)
			continue
		}

		active++
		p.logger.Info("job dispatched",
			"job_id", job.ID,
			"job_type", job.Type,
			"active", active,
			"max_concurrent", p.cfg.MaxConcurrent)

		go func(j *models.Job) {
			done <- taskResult{jobID: j.ID, err: p.process(ctx, j)}
		}(job)
	}
	return active
}

// process is the per-job error boundary: start, execute, then complete or
// fail. Executor errors and panics are converted into Fail calls and never
// propagate; only store-level failures are returned to the reaping step.
// Bookkeeping calls run on a non-cancellable context so an aborted executor
// still gets its failure recorded during shutdown.
func (p *Pool) process(ctx context.Context, job *models.Job) error {
	opCtx := context.WithoutCancel(ctx)

	if _, found, err := p.queue.Start(opCtx, job.ID); err != nil {
		return err
	} else if !found {
		p.logger.Warn("job vanished before start", "job_id", job.ID)
		return nil
	}

	result, execErr := p.execute(ctx, job)
	if execErr != nil {
		_, _, err := p.queue.Fail(opCtx, job.ID, execErr.Error(), true)
		return err
	}

	_, _, err := p.queue.Complete(opCtx, job.ID, result)
	return err
}

// execute dispatches to the matching executor, converting a missing
// registration or a panic into an ordinary executor failure.
func (p *Pool) execute(ctx context.Context, job *models.Job) (result map[string]any, err error) {
	exec, ok := p.registry[job.Type]
	if !ok {
		return nil, fmt.Errorf("no executor registered for job type %q", job.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in executor", "job_id", job.ID, "job_type", job.Type, "panic", r)
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()

	return exec(ctx, job)
}
