package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/forgestack/mindvault/internal/api/middleware"
	"github.com/forgestack/mindvault/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	GetJobHandler    http.HandlerFunc
	ListJobsHandler  http.HandlerFunc
	CancelJobHandler http.HandlerFunc
	DeleteJobHandler http.HandlerFunc

	IngestFileHandler      http.HandlerFunc
	IngestTextHandler      http.HandlerFunc
	BatchIngestHandler     http.HandlerFunc
	ReindexHandler         http.HandlerFunc
	DeleteDocumentsHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobsHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Post("/api/v1/jobs/{jobID}/cancel", orNotImplemented(deps.CancelJobHandler))
		r.Delete("/api/v1/jobs/{jobID}", orNotImplemented(deps.DeleteJobHandler))

		r.Post("/api/v1/ingest/file", orNotImplemented(deps.IngestFileHandler))
		r.Post("/api/v1/ingest/text", orNotImplemented(deps.IngestTextHandler))
		r.Post("/api/v1/ingest/batch", orNotImplemented(deps.BatchIngestHandler))
		r.Post("/api/v1/reindex", orNotImplemented(deps.ReindexHandler))
		r.Post("/api/v1/documents/delete", orNotImplemented(deps.DeleteDocumentsHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
