// Package api exposes the HTTP interface for the crawler and search
// service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrDaPoyo/indieseas/internal/metrics"
	"github.com/MrDaPoyo/indieseas/internal/ranker"
	"github.com/MrDaPoyo/indieseas/internal/store"
)

// Searcher runs a ranked search for a query string.
type Searcher interface {
	Search(ctx context.Context, query string) ([]ranker.Result, ranker.Metadata, error)
}

// Enqueuer accepts a URL into the crawl frontier.
type Enqueuer interface {
	Enqueue(ctx context.Context, rawURL string) bool
}

// Storage is the subset of the store the HTTP surface needs.
type Storage interface {
	ButtonContent(ctx context.Context, id int64) ([]byte, error)
	Stats(ctx context.Context) (store.Stats, error)
	RandomScrapedSite(ctx context.Context) (store.RandomSite, error)
}

// Server wires HTTP handlers to the ranker, store, and crawl engine.
type Server struct {
	router   chi.Router
	searcher Searcher
	storage  Storage
	enqueuer Enqueuer
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(searcher Searcher, storage Storage, enqueuer Enqueuer, logger *zap.Logger) *Server {
	s := &Server{
		searcher: searcher,
		storage:  storage,
		enqueuer: enqueuer,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/search", s.search)
	r.Get("/retrieveButton", s.retrieveButton)
	r.Get("/stats", s.stats)
	r.Get("/random", s.random)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/crawl", s.submitCrawl)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.storage.Stats(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchResult struct {
	Website           string  `json:"website"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	AmountOfButtons   int     `json:"amount_of_buttons"`
	Score             float64 `json:"score"`
	MatchedTypesCount int     `json:"matched_types_count"`
	WebsiteID         int64   `json:"website_id"`
}

type searchMetadata struct {
	OriginalDBCount int `json:"originalDbCount"`
	FinalCount      int `json:"finalCount"`
}

type searchResponse struct {
	Results  []searchResult `json:"results"`
	Metadata searchMetadata `json:"metadata"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	start := time.Now()
	results, meta, err := s.searcher.Search(r.Context(), query)
	if err != nil {
		s.logger.Error("search failed", zap.String("query", query), zap.Error(err))
		metrics.ObserveSearch("error", time.Since(start))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	metrics.ObserveSearch("ok", time.Since(start))

	resp := searchResponse{
		Results: make([]searchResult, 0, len(results)),
		Metadata: searchMetadata{
			OriginalDBCount: meta.OriginalDBCount,
			FinalCount:      meta.FinalCount,
		},
	}
	for _, res := range results {
		resp.Results = append(resp.Results, searchResult{
			Website:           res.Website,
			Title:             res.Title,
			Description:       res.Description,
			AmountOfButtons:   res.ButtonCount,
			Score:             res.Score,
			MatchedTypesCount: res.MatchedTypes,
			WebsiteID:         res.WebsiteID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) retrieveButton(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("buttonId")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter buttonId")
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "buttonId must be an integer")
		return
	}

	content, err := s.storage.ButtonContent(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "button not found")
		return
	}
	if err != nil {
		s.logger.Error("retrieve button failed", zap.Int64("button_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "retrieve button failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=button-%d.png", id))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		s.logger.Error("write button bytes failed", zap.Error(err))
	}
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.storage.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) random(w http.ResponseWriter, r *http.Request) {
	site, err := s.storage.RandomScrapedSite(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no scraped sites yet")
		return
	}
	if err != nil {
		s.logger.Error("random site failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "random site failed")
		return
	}
	writeJSON(w, http.StatusOK, site)
}

type crawlRequest struct {
	URL string `json:"url"`
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing url")
		return
	}
	if s.enqueuer == nil {
		writeError(w, http.StatusServiceUnavailable, "crawler not running")
		return
	}
	if !s.enqueuer.Enqueue(r.Context(), req.URL) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
