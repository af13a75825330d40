package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgestack/mindvault/pkg/models"
)

func TestProgress(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		processed int
		want      float64
	}{
		{"zero total", 0, 0, 0},
		{"zero total with processed", 0, 5, 0},
		{"halfway", 10, 5, 0.5},
		{"complete", 10, 10, 1.0},
		{"overshoot clamps to one", 10, 15, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &models.Job{TotalItems: tt.total, ProcessedItems: tt.processed}
			assert.InDelta(t, tt.want, j.Progress(), 1e-9)
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, models.JobStatusPending.IsTerminal())
	assert.False(t, models.JobStatusProcessing.IsTerminal())
	assert.True(t, models.JobStatusCompleted.IsTerminal())
	assert.True(t, models.JobStatusFailed.IsTerminal())
	assert.True(t, models.JobStatusCancelled.IsTerminal())
}

func TestParseJobStatus_Unknown(t *testing.T) {
	_, err := models.ParseJobStatus("paused")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paused")
}

func TestParseJobType_Unknown(t *testing.T) {
	_, err := models.ParseJobType("ingest_video")
	require.Error(t, err)
}

func TestJobJSON_Roundtrip(t *testing.T) {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	job := models.Job{
		ID:         "abc-123",
		UserID:     "user-1",
		Type:       models.JobTypeBatchIngest,
		Status:     models.JobStatusProcessing,
		TotalItems: 4,
		CreatedAt:  started.Add(-time.Minute),
		StartedAt:  &started,
		Metadata:   map[string]any{"file_paths": []any{"a.pdf", "b.pdf"}},
		Version:    3,
	}

	payload, err := json.Marshal(&job)
	require.NoError(t, err)

	var decoded models.Job
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, job.Type, decoded.Type)
	assert.Equal(t, job.Status, decoded.Status)
	assert.Equal(t, int64(3), decoded.Version)
	require.NotNil(t, decoded.StartedAt)
	assert.True(t, decoded.StartedAt.Equal(started))
}

func TestJobJSON_RejectsUnknownStatus(t *testing.T) {
	var job models.Job
	err := json.Unmarshal([]byte(`{"job_id":"x","status":"paused"}`), &job)
	require.Error(t, err)
}

func TestJobJSON_RejectsUnknownType(t *testing.T) {
	var job models.Job
	err := json.Unmarshal([]byte(`{"job_id":"x","job_type":"transcode"}`), &job)
	require.Error(t, err)
}

func TestDurationSeconds(t *testing.T) {
	var job models.Job
	assert.Nil(t, job.DurationSeconds())

	started := time.Now().UTC().Add(-10 * time.Second)
	completed := started.Add(4 * time.Second)
	job.StartedAt = &started
	job.CompletedAt = &completed

	d := job.DurationSeconds()
	require.NotNil(t, d)
	assert.InDelta(t, 4.0, *d, 0.001)
}

func TestClampCounters(t *testing.T) {
	j := &models.Job{TotalItems: 5, ProcessedItems: 9, FailedItems: -1}
	j.ClampCounters()
	assert.Equal(t, 5, j.ProcessedItems)
	assert.Equal(t, 0, j.FailedItems)

	// Zero total leaves increments untouched.
	j = &models.Job{TotalItems: 0, ProcessedItems: 3}
	j.ClampCounters()
	assert.Equal(t, 3, j.ProcessedItems)
}
