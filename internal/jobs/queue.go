// Package jobs implements the job lifecycle: creation, dispatch, progress
// tracking, completion, retry, and cleanup. The Queue is the only component
// that mutates a job record after creation.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/forgestack/mindvault/internal/store"
	"github.com/forgestack/mindvault/pkg/models"
)

// errAlreadyTerminal aborts a read-modify-write cycle without persisting,
// so cancelling a finished job does not touch its record or TTL.
var errAlreadyTerminal = errors.New("job already in terminal state")

// Config holds the queue's retention and retry policy.
type Config struct {
	// JobTTL is the retention of pending/processing records.
	JobTTL time.Duration
	// ResultTTL is the shortened retention applied on successful completion.
	ResultTTL time.Duration
	// MaxRetries is the retry budget granted to newly created jobs.
	MaxRetries int
	// RetryDelay is the base delay before the first retry; subsequent
	// retries back off exponentially up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// Queue orchestrates job state on top of the store. Safe for concurrent use.
type Queue struct {
	store  store.Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewQueue creates a Queue with the given policy.
func NewQueue(st store.Store, cfg Config, logger *slog.Logger) *Queue {
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 24 * time.Hour
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 15 * time.Minute
	}
	return &Queue{
		store:  st,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new pending job, records it in the owner's history, and
// enqueues it for dispatch.
func (q *Queue) Create(ctx context.Context, userID string, jobType models.JobType, totalItems int, metadata map[string]any) (*models.Job, error) {
	if totalItems < 0 {
		totalItems = 0
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	job := &models.Job{
		ID:         uuid.NewString(),
		UserID:     userID,
		Type:       jobType,
		Status:     models.JobStatusPending,
		TotalItems: totalItems,
		CreatedAt:  q.now(),
		MaxRetries: q.cfg.MaxRetries,
		Metadata:   metadata,
		Version:    1,
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encoding job: %w", err)
	}
	if err := q.store.Put(ctx, store.JobKey(job.ID), payload, q.cfg.JobTTL); err != nil {
		return nil, fmt.Errorf("storing job: %w", err)
	}
	if err := q.store.ListPrepend(ctx, store.UserJobsKey(userID), job.ID); err != nil {
		return nil, fmt.Errorf("recording job in user history: %w", err)
	}
	if err := q.store.ListAppend(ctx, store.QueueKey(jobType), job.ID); err != nil {
		return nil, fmt.Errorf("enqueueing job: %w", err)
	}

	q.logger.Info("job created", "job_id", job.ID, "job_type", jobType, "user_id", userID)
	return job, nil
}

// Get returns the job record, or ok=false when the ID is unknown or expired.
func (q *Queue) Get(ctx context.Context, jobID string) (*models.Job, bool, error) {
	payload, found, err := q.store.Get(ctx, store.JobKey(jobID))
	if err != nil {
		return nil, false, fmt.Errorf("loading job %s: %w", jobID, err)
	}
	if !found {
		return nil, false, nil
	}
	var job models.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, false, fmt.Errorf("decoding job %s: %w", jobID, err)
	}
	return &job, true, nil
}

// Start transitions a pending job to processing. The worker pool must call
// it exactly once, immediately after dequeue.
func (q *Queue) Start(ctx context.Context, jobID string) (*models.Job, bool, error) {
	job, found, err := q.mutate(ctx, jobID, q.cfg.JobTTL, func(j *models.Job) error {
		now := q.now()
		j.Status = models.JobStatusProcessing
		j.StartedAt = &now
		return nil
	})
	if err != nil || !found {
		return nil, found, err
	}
	q.logger.Info("job started", "job_id", jobID)
	return job, true, nil
}

// ProgressUpdate describes a progress write. Nil fields are left untouched;
// Increment switches from absolute counts to deltas.
type ProgressUpdate struct {
	ProcessedItems *int
	FailedItems    *int
	Increment      bool
}

// UpdateProgress applies a progress write. Counters are clamped so
// processed_items and failed_items never exceed total_items.
func (q *Queue) UpdateProgress(ctx context.Context, jobID string, upd ProgressUpdate) (*models.Job, bool, error) {
	return q.mutate(ctx, jobID, q.cfg.JobTTL, func(j *models.Job) error {
		if upd.ProcessedItems != nil {
			if upd.Increment {
				j.ProcessedItems += *upd.ProcessedItems
			} else {
				j.ProcessedItems = *upd.ProcessedItems
			}
		}
		if upd.FailedItems != nil {
			if upd.Increment {
				j.FailedItems += *upd.FailedItems
			} else {
				j.FailedItems = *upd.FailedItems
			}
		}
		j.ClampCounters()
		return nil
	})
}

// Complete marks the job successful, stores its result, forces progress to
// 100%, and re-persists the record with the shorter result TTL.
func (q *Queue) Complete(ctx context.Context, jobID string, result map[string]any) (*models.Job, bool, error) {
	if result == nil {
		result = map[string]any{}
	}
	job, found, err := q.mutate(ctx, jobID, q.cfg.ResultTTL, func(j *models.Job) error {
		now := q.now()
		j.Status = models.JobStatusCompleted
		j.CompletedAt = &now
		j.Result = result
		j.ProcessedItems = j.TotalItems
		return nil
	})
	if err != nil || !found {
		return nil, found, err
	}
	q.logger.Info("job completed",
		"job_id", jobID,
		"processed_items", job.ProcessedItems,
		"failed_items", job.FailedItems)
	return job, true, nil
}

// Fail records a failure. When shouldRetry is true and retry budget remains,
// the job returns to pending and is re-enqueued after an exponential backoff
// delay; otherwise it is terminally failed.
func (q *Queue) Fail(ctx context.Context, jobID string, errorMessage string, shouldRetry bool) (*models.Job, bool, error) {
	job, found, err := q.mutate(ctx, jobID, q.cfg.JobTTL, func(j *models.Job) error {
		j.ErrorMessage = errorMessage
		j.RetryCount++
		if shouldRetry && j.RetryCount <= j.MaxRetries {
			j.Status = models.JobStatusPending
		} else {
			now := q.now()
			j.Status = models.JobStatusFailed
			j.CompletedAt = &now
		}
		return nil
	})
	if err != nil || !found {
		return nil, found, err
	}

	if job.Status == models.JobStatusPending {
		delay := retryDelay(q.cfg.RetryDelay, q.cfg.MaxRetryDelay, job.RetryCount)
		if err := q.requeue(ctx, job, delay); err != nil {
			return nil, false, err
		}
		q.logger.Warn("job failed, will retry",
			"job_id", jobID,
			"attempt", job.RetryCount,
			"max_retries", job.MaxRetries,
			"retry_delay", delay,
			"error", errorMessage)
	} else {
		q.logger.Error("job failed permanently",
			"job_id", jobID,
			"attempts", job.RetryCount,
			"error", errorMessage)
	}
	return job, true, nil
}

func (q *Queue) requeue(ctx context.Context, job *models.Job, delay time.Duration) error {
	if delay > 0 {
		if err := q.store.DelayedAdd(ctx, store.DelayedQueueKey(job.Type), job.ID, q.now().Add(delay)); err != nil {
			return fmt.Errorf("scheduling retry for job %s: %w", job.ID, err)
		}
		return nil
	}
	if err := q.store.ListAppend(ctx, store.QueueKey(job.Type), job.ID); err != nil {
		return fmt.Errorf("re-enqueueing job %s: %w", job.ID, err)
	}
	return nil
}

// Cancel marks a non-terminal job cancelled. Cancelling an already terminal
// job is a no-op: the record is returned unchanged and its TTL not extended.
// Cancellation is advisory for in-flight work; an executing job is only
// prevented from being dequeued again.
func (q *Queue) Cancel(ctx context.Context, jobID string) (*models.Job, bool, error) {
	job, found, err := q.mutate(ctx, jobID, q.cfg.JobTTL, func(j *models.Job) error {
		if j.IsTerminal() {
			return errAlreadyTerminal
		}
		now := q.now()
		j.Status = models.JobStatusCancelled
		j.CompletedAt = &now
		return nil
	})
	if errors.Is(err, errAlreadyTerminal) {
		return q.Get(ctx, jobID)
	}
	if err != nil || !found {
		return nil, found, err
	}
	q.logger.Info("job cancelled", "job_id", jobID)
	return job, true, nil
}

// ListUserJobs returns up to limit of the user's most recent jobs, newest
// first. The status filter applies after the limit is taken from the history
// list, so a filtered page can come back short even when older matches exist.
func (q *Queue) ListUserJobs(ctx context.Context, userID string, limit int, statusFilter *models.JobStatus) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	jobIDs, err := q.store.ListRange(ctx, store.UserJobsKey(userID), 0, int64(limit)-1)
	if err != nil {
		return nil, fmt.Errorf("listing jobs for user %s: %w", userID, err)
	}

	jobs := make([]*models.Job, 0, len(jobIDs))
	for _, id := range jobIDs {
		job, found, err := q.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			// Record expired out from under its history entry.
			continue
		}
		if statusFilter != nil && job.Status != *statusFilter {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Dequeue pops the next pending job ID for the given type, promoting any
// retry candidates whose backoff delay has elapsed first.
func (q *Queue) Dequeue(ctx context.Context, jobType models.JobType) (string, bool, error) {
	due, err := q.store.PopDue(ctx, store.DelayedQueueKey(jobType), q.now())
	if err != nil {
		return "", false, fmt.Errorf("promoting delayed jobs for %s: %w", jobType, err)
	}
	if len(due) > 0 {
		if err := q.store.ListAppend(ctx, store.QueueKey(jobType), due...); err != nil {
			return "", false, fmt.Errorf("promoting delayed jobs for %s: %w", jobType, err)
		}
	}

	jobID, found, err := q.store.ListPopFront(ctx, store.QueueKey(jobType))
	if err != nil {
		return "", false, fmt.Errorf("dequeuing from %s: %w", jobType, err)
	}
	return jobID, found, nil
}

// CleanupOldJobs deletes terminal records older than maxAge. TTL expiry is
// the primary cleanup path; this sweep is the safety net behind it.
func (q *Queue) CleanupOldJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := q.now().Add(-maxAge)

	keys, err := q.store.Scan(ctx, "job:*")
	if err != nil {
		return 0, fmt.Errorf("scanning job keys: %w", err)
	}

	cleaned := 0
	for _, key := range keys {
		payload, found, err := q.store.Get(ctx, key)
		if err != nil {
			return cleaned, err
		}
		if !found {
			continue
		}

		var job models.Job
		if err := json.Unmarshal(payload, &job); err != nil {
			q.logger.Warn("skipping undecodable job record", "key", key, "error", err)
			continue
		}
		if !job.IsTerminal() || job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
			continue
		}

		if err := q.store.Delete(ctx, key); err != nil {
			return cleaned, err
		}
		cleaned++
	}

	q.logger.Info("job cleanup completed", "removed", cleaned, "max_age", maxAge)
	return cleaned, nil
}

// mutate runs a read-modify-write cycle on a job record. Every persisted
// write bumps the record's version.
func (q *Queue) mutate(ctx context.Context, jobID string, ttl time.Duration, apply func(*models.Job) error) (*models.Job, bool, error) {
	var job models.Job

	_, found, err := q.store.Update(ctx, store.JobKey(jobID), ttl, func(current []byte) ([]byte, error) {
		job = models.Job{}
		if err := json.Unmarshal(current, &job); err != nil {
			return nil, fmt.Errorf("decoding job %s: %w", jobID, err)
		}
		if err := apply(&job); err != nil {
			return nil, err
		}
		job.Version++
		return json.Marshal(&job)
	})
	if err != nil {
		if errors.Is(err, errAlreadyTerminal) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("updating job %s: %w", jobID, err)
	}
	if !found {
		q.logger.Warn("job not found", "job_id", jobID)
		return nil, false, nil
	}
	return &job, true, nil
}
