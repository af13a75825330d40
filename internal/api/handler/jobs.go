// Package handler contains the HTTP handlers for the job API. Authorization
// is decided here: every job endpoint compares the authenticated user against
// the record's owner before acting.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	mw "github.com/forgestack/mindvault/internal/api/middleware"
	"github.com/forgestack/mindvault/internal/api/response"
	"github.com/forgestack/mindvault/pkg/models"
)

const maxListLimit = 100

// JobQueue is the slice of the queue orchestrator the handlers depend on.
type JobQueue interface {
	Create(ctx context.Context, userID string, jobType models.JobType, totalItems int, metadata map[string]any) (*models.Job, error)
	Get(ctx context.Context, jobID string) (*models.Job, bool, error)
	Cancel(ctx context.Context, jobID string) (*models.Job, bool, error)
	ListUserJobs(ctx context.Context, userID string, limit int, statusFilter *models.JobStatus) ([]*models.Job, error)
}

// JobDeleter deletes a job record from the store. Deletion bypasses the
// orchestrator: a terminal record is removed key and all.
type JobDeleter interface {
	Delete(ctx context.Context, key string) error
}

type jobResponse struct {
	JobID           string         `json:"job_id"`
	UserID          string         `json:"user_id"`
	JobType         string         `json:"job_type"`
	Status          string         `json:"status"`
	TotalItems      int            `json:"total_items"`
	ProcessedItems  int            `json:"processed_items"`
	FailedItems     int            `json:"failed_items"`
	Progress        float64        `json:"progress"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	DurationSeconds *float64       `json:"duration_seconds,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	RetryCount      int            `json:"retry_count"`
	Result          map[string]any `json:"result,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func toJobResponse(j *models.Job) jobResponse {
	return jobResponse{
		JobID:           j.ID,
		UserID:          j.UserID,
		JobType:         j.Type.String(),
		Status:          j.Status.String(),
		TotalItems:      j.TotalItems,
		ProcessedItems:  j.ProcessedItems,
		FailedItems:     j.FailedItems,
		Progress:        j.Progress(),
		CreatedAt:       j.CreatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		DurationSeconds: j.DurationSeconds(),
		ErrorMessage:    j.ErrorMessage,
		RetryCount:      j.RetryCount,
		Result:          j.Result,
		Metadata:        j.Metadata,
	}
}

// loadOwnedJob fetches a job and enforces ownership, writing the 404/403
// itself. Returns nil when a response has already been sent.
func loadOwnedJob(w http.ResponseWriter, r *http.Request, q JobQueue) *models.Job {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return nil
	}

	jobID := chi.URLParam(r, "jobID")
	job, found, err := q.Get(r.Context(), jobID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
		return nil
	}
	if !found {
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
		return nil
	}
	if job.UserID != userID {
		response.Error(w, http.StatusForbidden, "FORBIDDEN",
			"You don't have permission to access this job", nil)
		return nil
	}
	return job
}

// NewGetJobHandler returns the handler for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(q JobQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job := loadOwnedJob(w, r, q)
		if job == nil {
			return
		}
		response.JSON(w, toJobResponse(job))
	}
}

type jobListResponse struct {
	Jobs  []jobResponse `json:"jobs"`
	Total int           `json:"total"`
}

// NewListJobsHandler returns the handler for GET /api/v1/jobs.
func NewListJobsHandler(q JobQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := parsePositiveInt(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"limit must be a positive integer", nil)
				return
			}
			limit = parsed
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}

		var statusFilter *models.JobStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, err := models.ParseJobStatus(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"unknown status filter", nil)
				return
			}
			statusFilter = &status
		}

		jobs, err := q.ListUserJobs(r.Context(), userID, limit, statusFilter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list jobs", nil)
			return
		}

		out := make([]jobResponse, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, toJobResponse(j))
		}
		response.JSON(w, jobListResponse{Jobs: out, Total: len(out)})
	}
}

type cancelJobResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Job     jobResponse `json:"job"`
}

// NewCancelJobHandler returns the handler for POST /api/v1/jobs/{jobID}/cancel.
// Cancelling an already finished job is reported with success=false, not an
// error status.
func NewCancelJobHandler(q JobQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job := loadOwnedJob(w, r, q)
		if job == nil {
			return
		}

		if job.IsTerminal() {
			response.JSON(w, cancelJobResponse{
				Success: false,
				Message: "Job cannot be cancelled: already " + job.Status.String(),
				Job:     toJobResponse(job),
			})
			return
		}

		cancelled, found, err := q.Cancel(r.Context(), job.ID)
		if err != nil || !found {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to cancel job", nil)
			return
		}

		response.JSON(w, cancelJobResponse{
			Success: cancelled.Status == models.JobStatusCancelled,
			Message: "Job cancelled successfully",
			Job:     toJobResponse(cancelled),
		})
	}
}

// NewDeleteJobHandler returns the handler for DELETE /api/v1/jobs/{jobID}.
// Only terminal jobs may be deleted; running ones must be cancelled first.
func NewDeleteJobHandler(q JobQueue, deleter JobDeleter, jobKey func(string) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job := loadOwnedJob(w, r, q)
		if job == nil {
			return
		}

		if !job.IsTerminal() {
			response.Error(w, http.StatusBadRequest, "JOB_NOT_TERMINAL",
				"Cannot delete a job that is still pending or processing. Cancel it first.", nil)
			return
		}

		if err := deleter.Delete(r.Context(), jobKey(job.ID)); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to delete job", nil)
			return
		}
		response.NoContent(w)
	}
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("value must be positive, got %d", n)
	}
	return n, nil
}
