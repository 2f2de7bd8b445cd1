package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kestrelsearch/kestrel/internal/completion"
	"github.com/kestrelsearch/kestrel/internal/domain"
	"github.com/kestrelsearch/kestrel/internal/metrics"
	"github.com/kestrelsearch/kestrel/internal/query"
	"github.com/kestrelsearch/kestrel/internal/session"
	"github.com/kestrelsearch/kestrel/internal/usecase/search"
	"github.com/kestrelsearch/kestrel/internal/version"
)

// SearchManager is the session-table surface the API exposes.
type SearchManager interface {
	StartSearch(req search.Request) (uuid.UUID, error)
	Status(id uuid.UUID) (domain.SearchStatus, error)
	FetchResults(id uuid.UUID, offset, limit int) (session.Page, error)
	Cancel(id uuid.UUID) bool
}

// Completer serves completion sessions.
type Completer interface {
	Start(sessionID uint64, query string, cursor int) completion.Batch
	Continue(sessionID uint64) completion.Batch
	Cancel(sessionID uint64)
}

// Pinger reports index backend reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrorResponse is the JSON error payload. Span is present only for
// query compilation errors.
type ErrorResponse struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Span    *SpanPayload `json:"span,omitempty"`
}

// SpanPayload is a byte range into the query string of the request.
type SpanPayload struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// FieldInfo is one row of the field catalog endpoint.
type FieldInfo struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases"`
	Description string   `json:"description"`
}

type startSearchRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type startSearchResponse struct {
	SessionID string `json:"session_id"`
}

type startCompletionRequest struct {
	SessionID uint64 `json:"session_id"`
	Query     string `json:"query"`
	Cursor    int    `json:"cursor"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server is the HTTP API for search and completion sessions.
type Server struct {
	sessions    SearchManager
	completions Completer
	index       Pinger
	logger      *zap.Logger

	defaultPageSize int
	maxPageSize     int

	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	sessions SearchManager,
	completions Completer,
	index Pinger,
	defaultPageSize, maxPageSize int,
	logger *zap.Logger,
) *Server {
	s := &Server{
		sessions:        sessions,
		completions:     completions,
		index:           index,
		logger:          logger,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
	s.errorHandlers = []errorHandler{
		invalidQueryHandler,
		sentinelHandler(domain.ErrSessionNotExists, http.StatusNotFound, "session_not_found"),
		sentinelHandler(domain.ErrSessionAlreadyCancelled, http.StatusConflict, "session_cancelled"),
		sentinelHandler(domain.ErrSearchFailed, http.StatusConflict, "search_failed"),
		sentinelHandler(domain.ErrInvalidMode, http.StatusBadRequest, "invalid_mode"),
		sentinelHandler(domain.ErrExtractorUnavailable, http.StatusBadGateway, "extractor_unavailable"),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, "index_unavailable"),
	}
	return s
}

// Routes builds the router for the API surface.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/ping", s.Ping)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/fields", s.ListFields)
		r.Post("/search", s.StartSearch)
		r.Get("/search/{sessionID}", s.SearchStatus)
		r.Get("/search/{sessionID}/results", s.FetchSearchResults)
		r.Delete("/search/{sessionID}", s.CancelSearch)
		r.Post("/complete", s.StartCompletion)
		r.Post("/complete/{sessionID}/next", s.ContinueCompletion)
		r.Delete("/complete/{sessionID}", s.CancelCompletion)
	})
	return r
}

// Ping handles GET /ping.
func (s *Server) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.String()})
}

// ListFields handles GET /v1/fields.
func (s *Server) ListFields(w http.ResponseWriter, r *http.Request) {
	fields := make([]FieldInfo, len(query.Fields))
	for i, def := range query.Fields {
		fields[i] = FieldInfo{
			Name:        def.Aliases[0],
			Aliases:     def.Aliases,
			Description: def.Description,
		}
	}
	writeJSON(w, http.StatusOK, fields)
}

// StartSearch handles POST /v1/search.
func (s *Server) StartSearch(w http.ResponseWriter, r *http.Request) {
	var req startSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "query is required")
		return
	}

	mode := domain.SearchMode(req.Mode)
	if req.Mode != "" && !mode.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_mode", "mode must be \"rule\" or \"natural\"")
		return
	}

	// Compile rule queries up front so malformed input fails the call
	// with a span instead of surfacing later as a failed session.
	if mode != domain.ModeNatural {
		if _, err := search.CompileQuery(req.Query); err != nil {
			s.handleDomainError(w, err)
			return
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	id, err := s.sessions.StartSearch(search.Request{Query: req.Query, Mode: mode, Limit: limit})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	label := string(mode)
	if label == "" {
		label = string(domain.ModeRule)
	}
	metrics.SearchesStartedTotal.WithLabelValues(label).Inc()

	writeJSON(w, http.StatusAccepted, startSearchResponse{SessionID: id.String()})
}

// SearchStatus handles GET /v1/search/{sessionID}.
func (s *Server) SearchStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	status, err := s.sessions.Status(id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// FetchSearchResults handles GET /v1/search/{sessionID}/results.
func (s *Server) FetchSearchResults(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	limit, err := queryInt(r, "limit", s.defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if offset < 0 || limit < 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "offset and limit must be non-negative")
		return
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	page, err := s.sessions.FetchResults(id, offset, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	metrics.HitsFetchedTotal.Add(float64(len(page.Hits)))
	writeJSON(w, http.StatusOK, page)
}

// CancelSearch handles DELETE /v1/search/{sessionID}.
func (s *Server) CancelSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	if !s.sessions.Cancel(id) {
		writeError(w, http.StatusNotFound, "session_not_found", domain.ErrSessionNotExists.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartCompletion handles POST /v1/complete.
func (s *Server) StartCompletion(w http.ResponseWriter, r *http.Request) {
	var req startCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Cursor < 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "cursor must be non-negative")
		return
	}

	metrics.CompletionSessionsTotal.Inc()
	writeJSON(w, http.StatusOK, s.completions.Start(req.SessionID, req.Query, req.Cursor))
}

// ContinueCompletion handles POST /v1/complete/{sessionID}/next.
func (s *Server) ContinueCompletion(w http.ResponseWriter, r *http.Request) {
	id, ok := completionID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.completions.Continue(id))
}

// CancelCompletion handles DELETE /v1/complete/{sessionID}.
func (s *Server) CancelCompletion(w http.ResponseWriter, r *http.Request) {
	id, ok := completionID(w, r)
	if !ok {
		return
	}
	s.completions.Cancel(id)
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"index": "ok"}
	status, httpStatus := "healthy", http.StatusOK

	if err := s.index.Ping(r.Context()); err != nil {
		checks["index"] = err.Error()
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func completionID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid completion session id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

// invalidQueryHandler maps query compilation failures to 400 with the
// offending byte span.
func invalidQueryHandler(w http.ResponseWriter, err error) bool {
	var iqe *domain.InvalidQueryError
	if !errors.As(err, &iqe) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Code:    iqe.Code,
		Message: iqe.Inner.Error(),
		Span:    &SpanPayload{Start: iqe.Start, End: iqe.End},
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
