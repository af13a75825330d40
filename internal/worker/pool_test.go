package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgestack/mindvault/internal/jobs"
	"github.com/forgestack/mindvault/internal/store"
	"github.com/forgestack/mindvault/internal/worker"
	"github.com/forgestack/mindvault/pkg/models"
)

func newTestPool(t *testing.T, qcfg jobs.Config, wcfg worker.Config, registry worker.Registry) (*worker.Pool, *jobs.Queue) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := jobs.NewQueue(store.NewMemoryStore(), qcfg, logger)
	if wcfg.PollInterval == 0 {
		wcfg.PollInterval = 10 * time.Millisecond
	}
	return worker.NewPool(q, registry, wcfg, logger), q
}

// runPool runs the pool in the background and returns a stop function that
// cancels it and waits for Run to return.
func runPool(t *testing.T, p *worker.Pool) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, p.Run(ctx))
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("pool did not stop")
		}
	}
}

// waitTerminal polls until the job reaches a terminal state.
func waitTerminal(t *testing.T, q *jobs.Queue, jobID string) *models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, found, err := q.Get(context.Background(), jobID)
		require.NoError(t, err)
		require.True(t, found)
		if job.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func TestPool_CompletesJob(t *testing.T) {
	registry := worker.Registry{
		models.JobTypeIngestText: func(ctx context.Context, job *models.Job) (map[string]any, error) {
			return map[string]any{"documents_created": 1}, nil
		},
	}
	pool, q := newTestPool(t, jobs.Config{}, worker.Config{}, registry)

	created, err := q.Create(context.Background(), "user-1", models.JobTypeIngestText, 1, nil)
	require.NoError(t, err)

	stop := runPool(t, pool)
	job := waitTerminal(t, q, created.ID)
	stop()

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, float64(1), job.Result["documents_created"])
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
}

func TestPool_RetriesThenFails(t *testing.T) {
	var attempts atomic.Int32
	registry := worker.Registry{
		models.JobTypeIngestFile: func(ctx context.Context, job *models.Job) (map[string]any, error) {
			attempts.Add(1)
			return nil, errors.New("indexer unreachable")
		},
	}
	pool, q := newTestPool(t, jobs.Config{MaxRetries: 2}, worker.Config{}, registry)

	created, err := q.Create(context.Background(), "user-1", models.JobTypeIngestFile, 1, nil)
	require.NoError(t, err)

	stop := runPool(t, pool)
	job := waitTerminal(t, q, created.ID)
	stop()

	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, 3, job.RetryCount, "initial attempt plus two retries")
	assert.Equal(t, "indexer unreachable", job.ErrorMessage)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestPool_SkipsCancelledJob(t *testing.T) {
	var executed atomic.Bool
	registry := worker.Registry{
		models.JobTypeIngestFile: func(ctx context.Context, job *models.Job) (map[string]any, error) {
			executed.Store(true)
			return nil, nil
		},
	}
	pool, q := newTestPool(t, jobs.Config{}, worker.Config{}, registry)
	ctx := context.Background()

	created, err := q.Create(ctx, "user-1", models.JobTypeIngestFile, 1, nil)
	require.NoError(t, err)
	_, _, err = q.Cancel(ctx, created.ID)
	require.NoError(t, err)

	stop := runPool(t, pool)
	// Give the pool a few polling passes to drain the queue entry.
	time.Sleep(100 * time.Millisecond)
	stop()

	assert.False(t, executed.Load(), "cancelled job must not execute")

	job, found, err := q.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.JobStatusCancelled, job.Status)

	// The stale queue entry is consumed, not left behind.
	_, found, err = q.Dequeue(ctx, models.JobTypeIngestFile)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPool_ConcurrencyCeiling(t *testing.T) {
	const maxConcurrent = 2
	const totalJobs = 6

	var mu sync.Mutex
	running, peak := 0, 0
	release := make(chan struct{})

	exec := func(ctx context.Context, job *models.Job) (map[string]any, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		<-release

		mu.Lock()
		running--
		mu.Unlock()
		return nil, nil
	}
	registry := worker.Registry{
		models.JobTypeIngestFile: exec,
		models.JobTypeIngestText: exec,
	}
	pool, q := newTestPool(t, jobs.Config{}, worker.Config{MaxConcurrent: maxConcurrent}, registry)
	ctx := context.Background()

	var ids []string
	for i := 0; i < totalJobs; i++ {
		jobType := models.JobTypeIngestFile
		if i%2 == 1 {
			jobType = models.JobTypeIngestText
		}
		job, err := q.Create(ctx, "user-1", jobType, 1, nil)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	stop := runPool(t, pool)
	time.Sleep(100 * time.Millisecond)
	close(release)
	for _, id := range ids {
		waitTerminal(t, q, id)
	}
	stop()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, maxConcurrent, "ceiling must never be exceeded")
	assert.Equal(t, maxConcurrent, peak, "ceiling should be reached under backlog")
}

func TestPool_PanicRecovery(t *testing.T) {
	var calls atomic.Int32
	registry := worker.Registry{
		models.JobTypeReindex: func(ctx context.Context, job *models.Job) (map[string]any, error) {
			calls.Add(1)
			panic("boom")
		},
	}
	pool, q := newTestPool(t, jobs.Config{MaxRetries: 0}, worker.Config{}, registry)

	created, err := q.Create(context.Background(), "user-1", models.JobTypeReindex, 1, nil)
	require.NoError(t, err)

	stop := runPool(t, pool)
	job := waitTerminal(t, q, created.ID)
	stop()

	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "executor panic")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPool_DrainsInFlightOnShutdown(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	registry := worker.Registry{
		models.JobTypeIngestText: func(ctx context.Context, job *models.Job) (map[string]any, error) {
			close(started)
			<-release
			return map[string]any{}, nil
		},
	}
	pool, q := newTestPool(t, jobs.Config{}, worker.Config{}, registry)
	ctx := context.Background()

	created, err := q.Create(ctx, "user-1", models.JobTypeIngestText, 1, nil)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		assert.NoError(t, pool.Run(runCtx))
	}()

	<-started
	cancel()

	select {
	case <-runDone:
		t.Fatal("pool stopped while a job was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after in-flight job finished")
	}

	job, found, err := q.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.JobStatusCompleted, job.Status, "bookkeeping survives shutdown")
}
