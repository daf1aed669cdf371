// Package api exposes the orchestration core's control plane over HTTP:
// submit a query, inspect/pause/resume/cancel/intervene on the resulting
// session, and stream its progress over NDJSON or WebSocket. Routing is
// go-chi (the same router jordigilh-kubernaut's gateway test suite drives
// its middleware stack through) instead of the teacher's bare
// http.ServeMux, since a control plane with path parameters
// (/sessions/{id}/...) is exactly the case chi exists for.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veritas-eu/orchestrator-core/core"
	"github.com/veritas-eu/orchestrator-core/domain"
	"github.com/veritas-eu/orchestrator-core/internal/bootstrap"
	"github.com/veritas-eu/orchestrator-core/internal/service"
	"github.com/veritas-eu/orchestrator-core/stream"
)

var errSessionNotFound = errors.New("session not found")

// Server is the HTTP control plane for one Service.
type Server struct {
	svc    *service.Service
	sys    *bootstrap.System
	logger core.Logger
}

func NewServer(svc *service.Service, sys *bootstrap.System) *Server {
	return &Server{svc: svc, sys: sys, logger: sys.Logger}
}

// Router builds the chi mux: CORS and panic recovery wrap every route,
// request logging covers the /v1/sessions routes except the WebSocket
// upgrade at /stream (this package's logging responseWriter doesn't
// implement http.Hijacker, which gorilla/websocket's Upgrade requires).
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(recoveryMiddleware(s.logger))
	r.Use(tracingMiddleware("veritas-orchestrator-core"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.sys.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1/sessions", func(r chi.Router) {
		r.With(loggingMiddleware(s.logger)).Post("/", s.handleSubmit)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(loggingMiddleware(s.logger))
				r.Get("/", s.handleGet)
				r.Get("/answer", s.handleAnswer)
				r.Post("/pause", s.handlePause)
				r.Post("/resume", s.handleResume)
				r.Post("/cancel", s.handleCancel)
				r.Post("/interventions", s.handleIntervene)
				r.Get("/events", s.handleNDJSON)
			})
			r.Get("/stream", s.handleWebSocket)
		})
	})
	return r
}

type submitRequest struct {
	Text                string                     `json:"text"`
	Locale              string                     `json:"locale"`
	ConversationHistory []domain.ConversationTurn  `json:"conversation_history,omitempty"`
	ConfigOverrides     map[string]interface{}     `json:"config_overrides,omitempty"`
}

type submitResponse struct {
	SessionID string `json:"session_id"`
	Intent    string `json:"intent"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	query := domain.Query{
		Text:                req.Text,
		Locale:              req.Locale,
		ConversationHistory: req.ConversationHistory,
		ConfigOverrides:     req.ConfigOverrides,
	}
	sess, err := s.svc.Submit(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runCtx, cancel := context.WithTimeout(context.Background(), s.sys.Config.PerPlanTimeout())
	go func() {
		defer cancel()
		s.svc.Run(runCtx, sess)
	}()

	writeJSON(w, http.StatusAccepted, submitResponse{SessionID: sess.ID, Intent: string(sess.Analysis.Intent)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.svc.Session(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sess.ID,
		"state":      sess.Orchestrator.State(),
		"steps":      sess.Orchestrator.Tree().Steps(),
	})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.svc.Session(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	answer, runErr, done := sess.Result()
	if !done {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"state": sess.Orchestrator.State()})
		return
	}
	if runErr != nil && answer == nil {
		writeError(w, http.StatusInternalServerError, runErr)
		return
	}
	// A clarification-needed plan is a first-class result, not an error:
	// answer.RequiresClarification/ClarificationFields serialize through
	// like any other field, so the caller gets the form schema at 200
	// rather than prose.
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.svc.Session(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	sess.Orchestrator.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.svc.Session(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	sess.Orchestrator.Resume()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.svc.Session(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	sess.Orchestrator.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

type interveneRequest struct {
	Actor   string                 `json:"actor"`
	Action  string                 `json:"action"`
	Payload map[string]interface{} `json:"payload"`
}

func (s *Server) handleIntervene(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.svc.Session(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	var req interveneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := sess.Orchestrator.Intervene(r.Context(), req.Actor, domain.InterventionAction(req.Action), req.Payload); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNDJSON(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.svc.Session(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	since := sinceSequenceFrom(r)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if err := stream.WriteNDJSON(r.Context(), sess.Orchestrator.Stream(), w, sess.ID, since); err != nil {
		s.logger.Warn("ndjson stream ended", map[string]interface{}{"session_id": sess.ID, "error": err.Error()})
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.svc.Session(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	handler := stream.NewWebSocketHandler(sess.Orchestrator.Stream(), s.logger)
	handler.ServeSession(w, r, sess.ID, sinceSequenceFrom(r))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func sinceSequenceFrom(r *http.Request) int64 {
	v := r.URL.Query().Get("since")
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
