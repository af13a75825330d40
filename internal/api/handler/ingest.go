package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	mw "github.com/forgestack/mindvault/internal/api/middleware"
	"github.com/forgestack/mindvault/internal/api/response"
	"github.com/forgestack/mindvault/pkg/models"
)

var validate = validator.New()

// decodeAndValidate parses the JSON body into req and runs its validation
// tags, writing the 400 itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	if err := validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return false
	}
	return true
}

// createJob enqueues a background job for the authenticated user and writes
// 202 Accepted with the created record.
func createJob(w http.ResponseWriter, r *http.Request, q JobQueue, jobType models.JobType, totalItems int, metadata map[string]any) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return
	}

	job, err := q.Create(r.Context(), userID, jobType, totalItems, metadata)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to create job", nil)
		return
	}
	response.Accepted(w, toJobResponse(job))
}

type ingestFileRequest struct {
	FilePath string `json:"file_path" validate:"required"`
}

// NewIngestFileHandler returns the handler for POST /api/v1/ingest/file.
func NewIngestFileHandler(q JobQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestFileRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		createJob(w, r, q, models.JobTypeIngestFile, 1, map[string]any{
			"file_path": req.FilePath,
		})
	}
}

type ingestTextRequest struct {
	Title       string         `json:"title"`
	Content     string         `json:"content" validate:"required"`
	DocMetadata map[string]any `json:"doc_metadata"`
}

// NewIngestTextHandler returns the handler for POST /api/v1/ingest/text.
func NewIngestTextHandler(q JobQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestTextRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		metadata := map[string]any{"content": req.Content}
		if req.Title != "" {
			metadata["title"] = req.Title
		}
		if req.DocMetadata != nil {
			metadata["doc_metadata"] = req.DocMetadata
		}
		createJob(w, r, q, models.JobTypeIngestText, 1, metadata)
	}
}

type batchIngestRequest struct {
	FilePaths []string `json:"file_paths" validate:"required,min=1,dive,required"`
}

// NewBatchIngestHandler returns the handler for POST /api/v1/ingest/batch.
func NewBatchIngestHandler(q JobQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchIngestRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		createJob(w, r, q, models.JobTypeBatchIngest, len(req.FilePaths), map[string]any{
			"file_paths": req.FilePaths,
		})
	}
}

// NewReindexHandler returns the handler for POST /api/v1/reindex.
func NewReindexHandler(q JobQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		createJob(w, r, q, models.JobTypeReindex, 1, map[string]any{})
	}
}

type deleteDocumentsRequest struct {
	DocumentIDs []string `json:"document_ids" validate:"required,min=1,dive,required"`
}

// NewDeleteDocumentsHandler returns the handler for POST /api/v1/documents/delete.
func NewDeleteDocumentsHandler(q JobQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deleteDocumentsRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		createJob(w, r, q, models.JobTypeDeleteDocuments, len(req.DocumentIDs), map[string]any{
			"document_ids": req.DocumentIDs,
		})
	}
}
