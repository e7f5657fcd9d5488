// Package api exposes the intake pipeline over HTTP: session control,
// clarification resolution, and a live SSE progress stream.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/clarify"
	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/session"
)

// Server holds the API's dependencies.
type Server struct {
	mgr *session.Manager
}

// NewServer creates the API server over a session manager.
func NewServer(mgr *session.Manager) *Server {
	return &Server{mgr: mgr}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/pipelines", func(r chi.Router) {
		r.Post("/", s.handleStart)
		r.Get("/", s.handleList)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Get("/events", s.handleEvents)
			r.Post("/continue", s.handleContinue)
			r.Get("/clarifications", s.handlePending)
			r.Post("/clarifications/resolve", s.handleResolveBulk)
			r.Post("/clarifications/{clarificationID}/resolve", s.handleResolve)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startRequest struct {
	DealID    string              `json:"deal_id"`
	Documents []model.DocumentRef `json:"documents"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DealID == "" {
		writeError(w, http.StatusBadRequest, "deal_id is required")
		return
	}

	snap, err := s.mgr.Start(r.Context(), req.DealID, req.Documents)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.mgr.List()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mgr.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mgr.Continue(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.mgr.Pending(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if pending == nil {
		pending = []model.Clarification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"clarifications": pending})
}

type resolveRequest struct {
	Value      any    `json:"value"`
	ResolvedBy string `json:"resolved_by"`
	Note       string `json:"note,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResolvedBy == "" {
		writeError(w, http.StatusBadRequest, "resolved_by is required")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	err := s.mgr.Resolve(r.Context(), sessionID,
		chi.URLParam(r, "clarificationID"), req.Value, req.ResolvedBy, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

type resolveBulkRequest struct {
	Resolutions []model.Resolution `json:"resolutions"`
}

func (s *Server) handleResolveBulk(w http.ResponseWriter, r *http.Request) {
	var req resolveBulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Resolutions) == 0 {
		writeError(w, http.StatusBadRequest, "resolutions is required")
		return
	}

	outcomes, err := s.mgr.ResolveBulk(r.Context(), chi.URLParam(r, "sessionID"), req.Resolutions)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps sentinel errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, session.ErrSessionNotFound),
		eris.Is(err, clarify.ErrSessionUnknown),
		eris.Is(err, clarify.ErrClarificationUnknown):
		writeError(w, http.StatusNotFound, err.Error())
	case eris.Is(err, session.ErrBlocked),
		eris.Is(err, session.ErrAlreadyRunning),
		eris.Is(err, clarify.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, err.Error())
	case eris.Is(err, session.ErrEmptyQueue):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zap.L().Error("api: internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
