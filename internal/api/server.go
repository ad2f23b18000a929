// Package api exposes the lead-capture flows over HTTP: wizard sessions,
// company enrichment, stage classification, scheduling links, page-view
// attribution, and metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/leadform/internal/analytics"
	"github.com/sells-group/leadform/internal/config"
	"github.com/sells-group/leadform/internal/meeting"
	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/monitoring"
	"github.com/sells-group/leadform/internal/phone"
	"github.com/sells-group/leadform/internal/webhook"
	"github.com/sells-group/leadform/internal/wizard"
)

// Metrics builds a metrics snapshot over a lookback window.
type Metrics interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error)
}

// Deps are the collaborators the API is built with. Forms and Webhook are
// required for the session routes; the rest degrade when nil.
type Deps struct {
	Forms    map[string]model.Form
	Webhook  webhook.Submitter
	Resolver wizard.Resolver
	Tracker  analytics.Tracker
	Pixel    wizard.Pixel
	Phone    phone.Validator
	Log      wizard.SubmissionLog
	Policy   wizard.FailurePolicy
	Meeting  *meeting.Picker
	Metrics  Metrics

	AllowedOrigins []string
	SessionTTL     time.Duration
}

// Server routes API requests.
type Server struct {
	deps     Deps
	sessions *Sessions
	router   chi.Router
}

// New builds the server and its routes.
func New(deps Deps) *Server {
	if deps.Meeting == nil {
		deps.Meeting = meeting.NewPicker(nil)
	}
	if len(deps.AllowedOrigins) == 0 {
		deps.AllowedOrigins = config.DefaultAllowedOrigins
	}
	s := &Server{
		deps:     deps,
		sessions: NewSessions(deps.SessionTTL),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Sessions returns the live session registry.
func (s *Server) Sessions() *Sessions { return s.sessions }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/forms", s.handleListForms)
		r.Get("/forms/{formID}", s.handleGetForm)
		r.Post("/forms/{formID}/sessions", s.handleCreateSession)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Put("/values", s.handleSetValues)
			r.Post("/choices", s.handleCheck)
			r.Post("/next", s.handleNext)
			r.Post("/prev", s.handlePrev)
			r.Post("/submit", s.handleSubmit)
			r.Post("/keys", s.handleKey)
			r.Post("/uploads", s.handleUpload)
		})

		r.Post("/enrich", s.handleEnrich)
		r.Get("/stage", s.handleStage)
		r.Get("/meeting-link", s.handleMeetingLink)
		r.Post("/track/pageview", s.handlePageView)
		r.Get("/metrics", s.handleMetrics)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"forms":    len(s.deps.Forms),
		"sessions": s.sessions.Len(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
