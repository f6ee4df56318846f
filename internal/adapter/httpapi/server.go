// Package httpapi exposes the stored events over HTTP: query endpoints,
// admin triggers for fetch and backup, and the usual health and metrics
// routes.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sambandhq/samband-ingest/internal/domain"
	"github.com/sambandhq/samband-ingest/internal/store"
)

// Fetcher triggers an immediate feed fetch, bypassing the interval check.
type Fetcher interface {
	Refresh(ctx context.Context) domain.FetchResult
}

// BackupRunner produces one verified database backup.
type BackupRunner interface {
	Backup(ctx context.Context) (string, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the query API plus health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	store      *store.Store
	fetcher    Fetcher
	backups    BackupRunner
	apiKey     string
	logger     *slog.Logger
}

// NewServer wires all routes. Everything under /api/ requires the X-API-Key
// header; health, readiness, and metrics stay open for probes and scrapers.
func NewServer(addr, apiKey string, st *store.Store, fetcher Fetcher, backups BackupRunner, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:   st,
		fetcher: fetcher,
		backups: backups,
		apiKey:  apiKey,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/events", s.auth(s.handleEvents))
	mux.HandleFunc("GET /api/events/raw", s.auth(s.handleEventsRaw))
	mux.HandleFunc("GET /api/locations", s.auth(s.handleLocations))
	mux.HandleFunc("GET /api/types", s.auth(s.handleTypes))
	mux.HandleFunc("GET /api/stats", s.auth(s.handleStats))
	mux.HandleFunc("GET /api/database", s.auth(s.handleDatabase))
	mux.HandleFunc("GET /api/fetches", s.auth(s.handleFetches))
	mux.HandleFunc("POST /api/fetch", s.auth(s.handleTriggerFetch))
	mux.HandleFunc("POST /api/backup", s.auth(s.handleTriggerBackup))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// auth rejects requests whose X-API-Key header does not match. The compare
// is constant-time so timing cannot leak the key.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing API key"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// eventsEnvelope is the paginated /api/events response.
type eventsEnvelope struct {
	Events  []json.RawMessage `json:"events"`
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
	HasMore bool              `json:"has_more"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	events, err := s.store.ListEvents(r.Context(), filter)
	if err != nil {
		s.serverError(w, "list events", err)
		return
	}
	total, err := s.store.CountFiltered(r.Context(), filter)
	if err != nil {
		s.serverError(w, "count events", err)
		return
	}

	writeJSON(w, http.StatusOK, eventsEnvelope{
		Events:  events,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
		HasMore: int64(filter.Offset+len(events)) < total,
	})
}

// handleEventsRaw serves the same result set as a bare array, matching the
// upstream feed shape so existing feed consumers can point here unchanged.
func (s *Server) handleEventsRaw(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	events, err := s.store.ListEvents(r.Context(), filter)
	if err != nil {
		s.serverError(w, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.store.Locations(r.Context())
	if err != nil {
		s.serverError(w, "list locations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locations})
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.store.Types(r.Context())
	if err != nil {
		s.serverError(w, "list types", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": types})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.EventStats(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		s.serverError(w, "event stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDatabase(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.Info(r.Context())
	if err != nil {
		s.serverError(w, "database info", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleFetches(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	entries, err := s.store.RecentFetches(r.Context(), limit)
	if err != nil {
		s.serverError(w, "recent fetches", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fetches": entries})
}

func (s *Server) handleTriggerFetch(w http.ResponseWriter, r *http.Request) {
	result := s.fetcher.Refresh(r.Context())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

func (s *Server) handleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	path, err := s.backups.Backup(r.Context())
	if err != nil {
		s.serverError(w, "backup", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "file": path})
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// filterFromQuery builds an EventFilter from request parameters, clamping
// the limit to 1..1000.
func filterFromQuery(r *http.Request) (store.EventFilter, error) {
	q := r.URL.Query()

	limit, err := intParam(r, "limit", 500)
	if err != nil {
		return store.EventFilter{}, err
	}
	if limit < 1 || limit > 1000 {
		limit = 500
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		return store.EventFilter{}, err
	}
	sortBy := q.Get("sort_by")
	if sortBy != "" && !store.ValidSortColumn(sortBy) {
		return store.EventFilter{}, &paramError{name: "sort_by", value: sortBy}
	}

	return store.EventFilter{
		Location: q.Get("location"),
		Type:     q.Get("type"),
		Date:     q.Get("date"),
		From:     q.Get("from"),
		To:       q.Get("to"),
		Query:    q.Get("q"),
		Limit:    limit,
		Offset:   offset,
		Sort:     q.Get("sort"),
		SortBy:   sortBy,
	}, nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &paramError{name: name, value: raw}
	}
	return n, nil
}

type paramError struct {
	name, value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + " parameter: " + e.value
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
