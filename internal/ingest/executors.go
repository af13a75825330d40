package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/forgestack/mindvault/internal/jobs"
	"github.com/forgestack/mindvault/internal/worker"
	"github.com/forgestack/mindvault/pkg/models"
)

// maxReportedFailures caps per-file error detail in batch results.
const maxReportedFailures = 10

// Executors bundles one executor per ingestion job type, all driving the
// same pipeline and reporting progress through the queue.
type Executors struct {
	pipeline Pipeline
	queue    *jobs.Queue
	logger   *slog.Logger
}

// NewExecutors creates the executor set.
func NewExecutors(pipeline Pipeline, queue *jobs.Queue, logger *slog.Logger) *Executors {
	return &Executors{pipeline: pipeline, queue: queue, logger: logger}
}

// Registry returns the full job-type registry for the worker pool.
func (e *Executors) Registry() worker.Registry {
	return worker.Registry{
		models.JobTypeIngestFile:      e.IngestFile,
		models.JobTypeIngestText:      e.IngestText,
		models.JobTypeBatchIngest:     e.BatchIngest,
		models.JobTypeReindex:         e.Reindex,
		models.JobTypeDeleteDocuments: e.DeleteDocuments,
	}
}

// IngestFile handles a single-file ingestion job. Metadata: file_path.
func (e *Executors) IngestFile(ctx context.Context, job *models.Job) (map[string]any, error) {
	filePath, ok := metaString(job.Metadata, "file_path")
	if !ok {
		return nil, fmt.Errorf("missing file_path in job metadata")
	}

	e.logger.Info("ingesting file", "job_id", job.ID, "file_path", filePath)

	stats, err := e.pipeline.IngestFile(ctx, job.UserID, filePath)
	if err != nil {
		return nil, err
	}
	e.markProcessed(ctx, job.ID, 1)

	return map[string]any{
		"documents_created":  stats.DocumentsCreated,
		"chunks_created":     stats.ChunksCreated,
		"embeddings_created": stats.EmbeddingsCreated,
		"file_path":          filePath,
	}, nil
}

// IngestText handles a raw-text ingestion job. Metadata: content, title
// (optional), doc_metadata (optional).
func (e *Executors) IngestText(ctx context.Context, job *models.Job) (map[string]any, error) {
	content, ok := metaString(job.Metadata, "content")
	if !ok {
		return nil, fmt.Errorf("missing content in job metadata")
	}
	title, ok := metaString(job.Metadata, "title")
	if !ok {
		title = "Untitled"
	}
	docMeta, _ := job.Metadata["doc_metadata"].(map[string]any)

	e.logger.Info("ingesting text", "job_id", job.ID, "title", title)

	stats, err := e.pipeline.IngestText(ctx, job.UserID, title, content, docMeta)
	if err != nil {
		return nil, err
	}
	e.markProcessed(ctx, job.ID, 1)

	return map[string]any{
		"documents_created":  stats.DocumentsCreated,
		"chunks_created":     stats.ChunksCreated,
		"embeddings_created": stats.EmbeddingsCreated,
		"title":              title,
	}, nil
}

// BatchIngest handles a multi-file ingestion job. Metadata: file_paths.
// Per-file failures are tallied and reported in the result; the batch keeps
// going and still completes successfully.
func (e *Executors) BatchIngest(ctx context.Context, job *models.Job) (map[string]any, error) {
	filePaths, ok := metaStringSlice(job.Metadata, "file_paths")
	if !ok || len(filePaths) == 0 {
		return nil, fmt.Errorf("missing file_paths in job metadata")
	}

	e.logger.Info("ingesting batch", "job_id", job.ID, "files", len(filePaths))

	var total Stats
	var failures []map[string]any

	for _, filePath := range filePaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stats, err := e.pipeline.IngestFile(ctx, job.UserID, filePath)
		if err != nil {
			e.logger.Error("batch file failed", "job_id", job.ID, "file_path", filePath, "error", err)
			if len(failures) < maxReportedFailures {
				failures = append(failures, map[string]any{
					"path":  filePath,
					"error": err.Error(),
				})
			}
			e.reportProgress(ctx, job.ID, jobs.ProgressUpdate{
				ProcessedItems: intPtr(1),
				FailedItems:    intPtr(1),
				Increment:      true,
			})
			continue
		}

		total.DocumentsCreated += stats.DocumentsCreated
		total.ChunksCreated += stats.ChunksCreated
		total.EmbeddingsCreated += stats.EmbeddingsCreated
		e.markProcessed(ctx, job.ID, 1)
	}

	return map[string]any{
		"total_files":        len(filePaths),
		"successful_files":   len(filePaths) - len(failures),
		"failed_files":       len(failures),
		"documents_created":  total.DocumentsCreated,
		"chunks_created":     total.ChunksCreated,
		"embeddings_created": total.EmbeddingsCreated,
		"failures":           failures,
	}, nil
}

// Reindex rebuilds the owner's entire index.
func (e *Executors) Reindex(ctx context.Context, job *models.Job) (map[string]any, error) {
	e.logger.Info("reindexing", "job_id", job.ID, "user_id", job.UserID)

	stats, err := e.pipeline.Reindex(ctx, job.UserID)
	if err != nil {
		return nil, err
	}
	e.markProcessed(ctx, job.ID, 1)

	return map[string]any{
		"documents_created":  stats.DocumentsCreated,
		"chunks_created":     stats.ChunksCreated,
		"embeddings_created": stats.EmbeddingsCreated,
	}, nil
}

// DeleteDocuments removes documents in bulk. Metadata: document_ids.
func (e *Executors) DeleteDocuments(ctx context.Context, job *models.Job) (map[string]any, error) {
	documentIDs, ok := metaStringSlice(job.Metadata, "document_ids")
	if !ok || len(documentIDs) == 0 {
		return nil, fmt.Errorf("missing document_ids in job metadata")
	}

	e.logger.Info("deleting documents", "job_id", job.ID, "count", len(documentIDs))

	deleted, err := e.pipeline.DeleteDocuments(ctx, job.UserID, documentIDs)
	if err != nil {
		return nil, err
	}
	e.reportProgress(ctx, job.ID, jobs.ProgressUpdate{ProcessedItems: intPtr(deleted)})

	return map[string]any{
		"requested": len(documentIDs),
		"deleted":   deleted,
	}, nil
}

// markProcessed increments the processed counter by n.
func (e *Executors) markProcessed(ctx context.Context, jobID string, n int) {
	e.reportProgress(ctx, jobID, jobs.ProgressUpdate{ProcessedItems: intPtr(n), Increment: true})
}

// reportProgress is best effort: a lost progress write never fails the job.
func (e *Executors) reportProgress(ctx context.Context, jobID string, upd jobs.ProgressUpdate) {
	if _, _, err := e.queue.UpdateProgress(ctx, jobID, upd); err != nil {
		e.logger.Warn("progress update failed", "job_id", jobID, "error", err)
	}
}

func metaString(metadata map[string]any, key string) (string, bool) {
	v, ok := metadata[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// metaStringSlice reads a string list out of JSON-decoded metadata, where
// arrays arrive as []any.
func metaStringSlice(metadata map[string]any, key string) ([]string, bool) {
	switch v := metadata[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func intPtr(n int) *int { return &n }
