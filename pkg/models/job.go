package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a background job. The set is closed:
// unknown values are rejected at deserialization.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

var validStatuses = map[JobStatus]bool{
	JobStatusPending:    true,
	JobStatusProcessing: true,
	JobStatusCompleted:  true,
	JobStatusFailed:     true,
	JobStatusCancelled:  true,
}

// ParseJobStatus converts a wire string to a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(s)
	if !validStatuses[st] {
		return "", fmt.Errorf("unknown job status %q", s)
	}
	return st, nil
}

func (s JobStatus) String() string { return string(s) }

// IsTerminal reports whether no further transitions are permitted.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseJobStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// JobType identifies which executor handles a job. Closed set, like JobStatus.
type JobType string

const (
	JobTypeIngestFile      JobType = "ingest_file"
	JobTypeIngestText      JobType = "ingest_text"
	JobTypeBatchIngest     JobType = "batch_ingest"
	JobTypeReindex         JobType = "reindex"
	JobTypeDeleteDocuments JobType = "delete_documents"
)

// AllJobTypes is the fixed polling order of the worker pool's round robin.
var AllJobTypes = []JobType{
	JobTypeIngestFile,
	JobTypeIngestText,
	JobTypeBatchIngest,
	JobTypeReindex,
	JobTypeDeleteDocuments,
}

var validTypes = map[JobType]bool{
	JobTypeIngestFile:      true,
	JobTypeIngestText:      true,
	JobTypeBatchIngest:     true,
	JobTypeReindex:         true,
	JobTypeDeleteDocuments: true,
}

// ParseJobType converts a wire string to a JobType.
func ParseJobType(s string) (JobType, error) {
	jt := JobType(s)
	if !validTypes[jt] {
		return "", fmt.Errorf("unknown job type %q", s)
	}
	return jt, nil
}

func (t JobType) String() string { return string(t) }

func (t *JobType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseJobType(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Job is the durable record of one unit of background work (file ingestion,
// batch ingestion, reindexing, ...). It is persisted as JSON in the job store;
// the queue orchestrator is the only component that mutates it after creation.
type Job struct {
	ID     string    `json:"job_id"`
	UserID string    `json:"user_id"`
	Type   JobType   `json:"job_type"`
	Status JobStatus `json:"status"`

	TotalItems     int `json:"total_items"`
	ProcessedItems int `json:"processed_items"`
	FailedItems    int `json:"failed_items"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count"`
	MaxRetries   int    `json:"max_retries"`

	Result   map[string]any `json:"result,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Version increments on every successful write; the store's
	// read-modify-write path uses it to detect concurrent mutations.
	Version int64 `json:"version"`
}

// Progress returns completion as a fraction in [0, 1]. Zero total means 0.
func (j *Job) Progress() float64 {
	if j.TotalItems == 0 {
		return 0
	}
	p := float64(j.ProcessedItems) / float64(j.TotalItems)
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}

// DurationSeconds returns elapsed execution time, or nil if never started.
// For running jobs the duration is measured against the current time.
func (j *Job) DurationSeconds() *float64 {
	if j.StartedAt == nil {
		return nil
	}
	end := time.Now().UTC()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	d := end.Sub(*j.StartedAt).Seconds()
	return &d
}

// IsTerminal reports whether the job reached a final state.
func (j *Job) IsTerminal() bool { return j.Status.IsTerminal() }

// ClampCounters enforces processed_items <= total_items and
// failed_items <= total_items after progress writes.
func (j *Job) ClampCounters() {
	if j.ProcessedItems < 0 {
		j.ProcessedItems = 0
	}
	if j.FailedItems < 0 {
		j.FailedItems = 0
	}
	if j.TotalItems > 0 {
		if j.ProcessedItems > j.TotalItems {
			j.ProcessedItems = j.TotalItems
		}
		if j.FailedItems > j.TotalItems {
			j.FailedItems = j.TotalItems
		}
	}
}
