// Package api serves anderson's read surface: insights, stats, daily
// summaries, and service status.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/anderson/internal/model"
	"github.com/MikeSquared-Agency/anderson/internal/store"
)

type Server struct {
	router *chi.Mux
	server *http.Server
	store  *store.Store
	logger *slog.Logger
}

func NewServer(port int, db *store.Store, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		store:  db,
		logger: logger,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		},
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/anderson/status", s.status)
	router.Get("/api/v1/insights", s.listInsights)
	router.Get("/api/v1/insights/stats", s.insightStats)
	router.Get("/api/v1/summary/{date}", s.dailySummary)

	return s
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	total, processed, err := s.store.ConversationCounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	runs, err := s.store.RecentJobRuns(r.Context(), 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":                   "anderson",
		"conversations":           total,
		"conversations_processed": processed,
		"recent_jobs":             runs,
	})
}

func (s *Server) listInsights(w http.ResponseWriter, r *http.Request) {
	filter, err := parseInsightFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	insights, err := s.store.GetInsights(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if insights == nil {
		insights = []model.Insight{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"insights": insights,
		"count":    len(insights),
	})
}

func (s *Server) insightStats(w http.ResponseWriter, r *http.Request) {
	sinceDays := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid days: %q", v))
			return
		}
		sinceDays = n
	}
	stats, err := s.store.GetInsightStats(r.Context(), sinceDays)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) dailySummary(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid date, want YYYY-MM-DD: %w", err))
		return
	}
	summary, err := s.store.GetDailySummary(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func parseInsightFilter(r *http.Request) (store.InsightFilter, error) {
	q := r.URL.Query()
	filter := store.InsightFilter{
		Type:       model.InsightType(q.Get("type")),
		Category:   model.Category(q.Get("category")),
		SearchTerm: q.Get("search"),
		Limit:      100,
	}
	if v := q.Get("conversation_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, fmt.Errorf("invalid conversation_id: %w", err)
		}
		filter.ConversationID = id
	}
	if v := q.Get("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return filter, fmt.Errorf("invalid min_confidence: %q", v)
		}
		filter.MinConfidence = f
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			return filter, fmt.Errorf("invalid limit: %q", v)
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid offset: %q", v)
		}
		filter.Offset = n
	}
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, fmt.Errorf("invalid days: %q", v)
		}
		filter.Since = time.Now().UTC().AddDate(0, 0, -n)
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid since: %w", err)
		}
		filter.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid until: %w", err)
		}
		filter.Until = t
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
