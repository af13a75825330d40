// Package ingest adapts ingestion work (file parsing, embedding, indexing)
// onto the job system. The heavy lifting happens in the indexer service; this
// package holds the client for it and the executors that drive it per job.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Sentinel errors for indexer client failures.
var (
	ErrIndexerUnreachable = errors.New("indexer unreachable")
	ErrIndexerTimeout     = errors.New("indexer timeout")
)

// Stats summarizes what one ingestion call produced.
type Stats struct {
	DocumentsCreated  int `json:"documents_created"`
	ChunksCreated     int `json:"chunks_created"`
	EmbeddingsCreated int `json:"embeddings_created"`
}

// Pipeline is the boundary to the document/embedding subsystem. Executors
// call it; its internals (loaders, embedders, vector stores) live elsewhere.
type Pipeline interface {
	IngestFile(ctx context.Context, userID, filePath string) (Stats, error)
	IngestText(ctx context.Context, userID, title, content string, docMetadata map[string]any) (Stats, error)
	Reindex(ctx context.Context, userID string) (Stats, error)
	DeleteDocuments(ctx context.Context, userID string, documentIDs []string) (int, error)
}

// HTTPPipeline implements Pipeline against the indexer service's REST API.
type HTTPPipeline struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPipeline creates an indexer client with the given request timeout.
func NewHTTPPipeline(baseURL string, timeout time.Duration) *HTTPPipeline {
	return &HTTPPipeline{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPPipeline) IngestFile(ctx context.Context, userID, filePath string) (Stats, error) {
	var stats Stats
	err := p.post(ctx, "/v1/ingest/file", map[string]any{
		"user_id":   userID,
		"file_path": filePath,
	}, &stats)
	return stats, err
}

func (p *HTTPPipeline) IngestText(ctx context.Context, userID, title, content string, docMetadata map[string]any) (Stats, error) {
	var stats Stats
	err := p.post(ctx, "/v1/ingest/text", map[string]any{
		"user_id":  userID,
		"title":    title,
		"content":  content,
		"metadata": docMetadata,
	}, &stats)
	return stats, err
}

func (p *HTTPPipeline) Reindex(ctx context.Context, userID string) (Stats, error) {
	var stats Stats
	err := p.post(ctx, "/v1/reindex", map[string]any{
		"user_id": userID,
	}, &stats)
	return stats, err
}

func (p *HTTPPipeline) DeleteDocuments(ctx context.Context, userID string, documentIDs []string) (int, error) {
	var out struct {
		Deleted int `json:"deleted"`
	}
	err := p.post(ctx, "/v1/documents/delete", map[string]any{
		"user_id":      userID,
		"document_ids": documentIDs,
	}, &out)
	return out.Deleted, err
}

func (p *HTTPPipeline) post(ctx context.Context, path string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("indexer returned status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding indexer response: %w", err)
	}
	return nil
}

func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrIndexerTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrIndexerTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrIndexerUnreachable, err)
}

var _ Pipeline = (*HTTPPipeline)(nil)
