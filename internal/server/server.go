// Package server exposes the HTTP API: sync control, search, stats and
// issue listing. Responses never include embedding blobs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nvell/issuelens/internal/provider"
	"github.com/nvell/issuelens/internal/search"
	"github.com/nvell/issuelens/internal/store"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	defaultListLimit   = 20
	maxListLimit       = 100
	recentIssuesCount  = 10
)

// triggerer starts a background sync run.
type triggerer interface {
	Trigger(ctx context.Context) (string, error)
}

// AppDeps holds the dependencies for the HTTP handler.
type AppDeps struct {
	Store     *store.DB
	Embedder  provider.Embedder
	Runner    triggerer
	Threshold float64
	Logger    *slog.Logger
}

// NewHandler builds the API router.
func NewHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/sync", handleTriggerSync(deps))
		r.Get("/sync/status", handleSyncStatus(deps))
		r.Get("/search/keyword", handleKeywordSearch(deps))
		r.Get("/search/vector", handleVectorSearch(deps))
		r.Get("/stats", handleStats(deps))
		r.Post("/stats/rebuild", handleRebuildStats(deps))
		r.Get("/issues", handleListIssues(deps))
		r.Delete("/issues", handleClearIssues(deps))
	})
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleTriggerSync(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		syncID, err := deps.Runner.Trigger(r.Context())
		if errors.Is(err, store.ErrSyncRunning) {
			httpError(w, http.StatusConflict, "sync_running", "a sync is already running")
			return
		}
		if err != nil {
			deps.Logger.Error("sync trigger failed", "error", err)
			httpError(w, http.StatusInternalServerError, "internal_error", "failed to start sync")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"syncId": syncID})
	}
}

func handleSyncStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status, err := deps.Store.GetSyncStatus()
		if err != nil {
			deps.Logger.Error("sync status read failed", "error", err)
			httpError(w, http.StatusInternalServerError, "internal_error", "failed to read sync status")
			return
		}
		writeJSON(w, http.StatusOK, toStatusView(status))
	}
}

func handleKeywordSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := queryInt(r, "limit", defaultSearchLimit, maxSearchLimit)

		results, err := search.Keyword(deps.Store, query, limit)
		if err != nil {
			deps.Logger.Error("keyword search failed", "query", query, "error", err)
			httpError(w, http.StatusInternalServerError, "internal_error", "search failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": resultViews(results)})
	}
}

func handleVectorSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := queryInt(r, "limit", defaultSearchLimit, maxSearchLimit)

		results, err := search.Vector(r.Context(), deps.Store, deps.Embedder, query, limit, deps.Threshold)
		if err != nil {
			deps.Logger.Error("vector search failed", "query", query, "error", err)
			httpError(w, http.StatusInternalServerError, "internal_error", "search failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": resultViews(results)})
	}
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats, err := deps.Store.GetStats()
		if err != nil {
			deps.Logger.Error("stats read failed", "error", err)
			httpError(w, http.StatusInternalServerError, "internal_error", "failed to read stats")
			return
		}
		recent, err := deps.Store.ListRecentIssues(recentIssuesCount)
		if err != nil {
			deps.Logger.Error("recent issues read failed", "error", err)
			httpError(w, http.StatusInternalServerError, "internal_error", "failed to read recent issues")
			return
		}
		writeJSON(w, http.StatusOK, statsResponse{
			Total:        stats.Total,
			ByCategory:   stats.ByCategory,
			ByConfidence: stats.ByConfidence,
			LastSync:     stats.LastSync,
			RecentIssues: issueViews(recent),
		})
	}
}

func handleRebuildStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats, err := deps.Store.RebuildStats()
		if err != nil {
			deps.Logger.Error("stats rebuild failed", "error", err)
			httpError(w, http.StatusInternalServerError, "internal_error", "failed to rebuild stats")
			return
		}
		writeJSON(w, http.StatusOK, statsResponse{
			Total:        stats.Total,
			ByCategory:   stats.ByCategory,
			ByConfidence: stats.ByConfidence,
			LastSync:     stats.LastSync,
			RecentIssues: []issueView{},
		})
	}
}

func handleListIssues(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := queryInt(r, "limit", defaultListLimit, maxListLimit)
		offset := queryInt(r, "offset", 0, 1<<30)

		issues, total, err := deps.Store.ListFilteredIssues(q.Get("category"), q.Get("confidence"), limit, offset)
		if err != nil {
			deps.Logger.Error("issue list failed", "error", err)
			httpError(w, http.StatusInternalServerError, "internal_error", "failed to list issues")
			return
		}
		writeJSON(w, http.StatusOK, listResponse{
			Issues:  issueViews(issues),
			Total:   total,
			HasMore: offset+len(issues) < total,
		})
	}
}

func handleClearIssues(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		deleted, err := deps.Store.ClearAllIssues()
		if err != nil {
			deps.Logger.Error("clear issues failed", "error", err)
			httpError(w, http.StatusInternalServerError, "internal_error", "failed to clear issues")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
	}
}

// queryInt parses an integer query parameter with a default and an upper
// bound. Malformed or non-positive values fall back to the default.
func queryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if name != "offset" && n == 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
