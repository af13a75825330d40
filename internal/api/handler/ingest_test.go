package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgestack/mindvault/pkg/models"
)

func TestIngestFileEndpoint(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, "user-1", http.MethodPost, "/api/v1/ingest/file",
		`{"file_path": "/docs/notes.pdf"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	data := parseData(t, rec)
	assert.Equal(t, "ingest_file", data["job_type"])
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, float64(1), data["total_items"])

	// The job is queued for dispatch.
	id, found, err := env.queue.Dequeue(context.Background(), models.JobTypeIngestFile)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, data["job_id"], id)
}

func TestIngestFileEndpoint_MissingPath(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, "user-1", http.MethodPost, "/api/v1/ingest/file", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", parseErrorCode(t, rec))
}

func TestIngestFileEndpoint_BadJSON(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, "user-1", http.MethodPost, "/api/v1/ingest/file", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestTextEndpoint(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, "user-1", http.MethodPost, "/api/v1/ingest/text",
		`{"title": "My Note", "content": "remember this", "doc_metadata": {"source": "web"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	data := parseData(t, rec)
	assert.Equal(t, "ingest_text", data["job_type"])

	metadata := data["metadata"].(map[string]any)
	assert.Equal(t, "My Note", metadata["title"])
	assert.Equal(t, "remember this", metadata["content"])
}

func TestIngestTextEndpoint_MissingContent(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, "user-1", http.MethodPost, "/api/v1/ingest/text", `{"title": "x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", parseErrorCode(t, rec))
}

func TestBatchIngestEndpoint(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, "user-1", http.MethodPost, "/api/v1/ingest/batch",
		`{"file_paths": ["/docs/a.pdf", "/docs/b.md"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	data := parseData(t, rec)
	assert.Equal(t, "batch_ingest", data["job_type"])
	assert.Equal(t, float64(2), data["total_items"])
}

func TestBatchIngestEndpoint_EmptyList(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, "user-1", http.MethodPost, "/api/v1/ingest/batch", `{"file_paths": []}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", parseErrorCode(t, rec))
}

func TestReindexEndpoint(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, "user-1", http.MethodPost, "/api/v1/reindex", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	data := parseData(t, rec)
	assert.Equal(t, "reindex", data["job_type"])
	assert.Equal(t, "user-1", data["user_id"])
}

func TestDeleteDocumentsEndpoint(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, "user-1", http.MethodPost, "/api/v1/documents/delete",
		`{"document_ids": ["d1", "d2"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	data := parseData(t, rec)
	assert.Equal(t, "delete_documents", data["job_type"])
	assert.Equal(t, float64(2), data["total_items"])
}

func TestCreateEndpoints_MissingUser(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, "", http.MethodPost, "/api/v1/reindex", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", parseErrorCode(t, rec))
}
