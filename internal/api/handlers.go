// Package api provides the HTTP surface for the backfill service: task
// submission, queue stats, admin operations and book lookups.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/openshelf/openshelf/internal/books"
	"github.com/openshelf/openshelf/internal/cache"
	"github.com/openshelf/openshelf/internal/db"
	"github.com/rs/zerolog/log"
)

// BackfillService is the coordinator surface the API depends on
type BackfillService interface {
	Enqueue(ctx context.Context, source, sourceID string, priority int)
	QueueStats(ctx context.Context) *db.QueueStats
	RetryFailed(ctx context.Context) int64
}

// BookStore reads book records for the public endpoints
type BookStore interface {
	GetBySlug(ctx context.Context, slug string) (*books.Record, error)
}

// DBPinger checks database connectivity for health endpoints
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for API handlers
type Handler struct {
	backfill BackfillService
	books    BookStore
	recent   *cache.RecentlyViewed
	pinger   DBPinger
	auth     AuthConfig
	version  string
}

// NewHandler creates a new API handler with all dependencies
func NewHandler(backfill BackfillService, bookStore BookStore, recent *cache.RecentlyViewed, pinger DBPinger, auth AuthConfig, version string) *Handler {
	return &Handler{
		backfill: backfill,
		books:    bookStore,
		recent:   recent,
		pinger:   pinger,
		auth:     auth,
		version:  version,
	}
}

// SetupRoutes registers all API routes on the given mux
func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/health/db", h.HealthDB)

	mux.HandleFunc("/v1/backfill/tasks", h.CreateTask)
	mux.HandleFunc("/v1/backfill/stats", h.QueueStats)
	mux.HandleFunc("/v1/backfill/retry-failed", AdminAuthMiddleware(h.auth, h.RetryFailed))

	mux.HandleFunc("/v1/books/recent", h.RecentBooks)
	mux.HandleFunc("/v1/books/", h.GetBook)
}

// Health returns service liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// HealthDB returns database connectivity status
func (h *Handler) HealthDB(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("Database health check failed")
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// createTaskRequest is the payload for task submission
type createTaskRequest struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id"`
	Priority int    `json:"priority"`
}

// CreateTask accepts a backfill task for asynchronous processing. Submission
// is fire-and-forget: duplicates are silently absorbed and enqueue failures
// never surface to the caller, so the response is always 202.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r)
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "Invalid JSON body")
		return
	}

	req.Source = strings.TrimSpace(req.Source)
	req.SourceID = strings.TrimSpace(req.SourceID)
	if req.Source == "" || req.SourceID == "" {
		BadRequest(w, r, "source and source_id are required")
		return
	}

	h.backfill.Enqueue(r.Context(), req.Source, req.SourceID, req.Priority)

	WriteSuccess(w, http.StatusAccepted, map[string]string{
		"source":    req.Source,
		"source_id": req.SourceID,
	}, "Task accepted")
}

// QueueStats returns queue counters for the recent window
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	stats := h.backfill.QueueStats(r.Context())
	WriteSuccess(w, http.StatusOK, stats, "")
}

// RetryFailed re-queues all exhausted tasks with a fresh attempt budget
func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r)
		return
	}

	affected := h.backfill.RetryFailed(r.Context())

	log.Info().
		Str("request_id", GetRequestID(r)).
		Int64("tasks", affected).
		Msg("Failed tasks queued for retry")

	WriteSuccess(w, http.StatusOK, map[string]int64{
		"retried": affected,
	}, "Failed tasks queued for retry")
}

// GetBook returns a book record by slug
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	slug := strings.TrimPrefix(r.URL.Path, "/v1/books/")
	if slug == "" || strings.Contains(slug, "/") {
		NotFound(w, r, "Book not found")
		return
	}

	record, err := h.books.GetBySlug(r.Context(), slug)
	if err != nil {
		InternalError(w, r, "Failed to load book")
		return
	}
	if record == nil {
		NotFound(w, r, "Book not found")
		return
	}

	if h.recent != nil {
		h.recent.Record(record.Slug, record.Title)
	}

	WriteSuccess(w, http.StatusOK, record, "")
}

// RecentBooks returns the most recently viewed books
func (h *Handler) RecentBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	entries := []cache.RecentEntry{}
	if h.recent != nil {
		entries = h.recent.List()
	}

	WriteSuccess(w, http.StatusOK, entries, "")
}
