// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/skilift/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger for the handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wires HTTP routes for the ingress API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	skiersHandler *SkiersHandler
	logger        logger.Logger
}

// NewServer creates a new API server with all handlers. A nil publisher
// yields an operational server without the ingress routes.
func NewServer(publisher Publisher, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	if publisher != nil {
		s.skiersHandler = NewSkiersHandler(publisher, s.logger)
	}
	return s
}

// NewRouter returns a chi router with recovery, request ids and metrics applied.
func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(Metrics)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", s.statsHandler.HandleStats)

	if s.skiersHandler == nil {
		return
	}
	r.Get(skiersRoot, s.skiersHandler.HandleGet)
	r.Get(skiersRoot+"/*", s.skiersHandler.HandleGet)
	r.Post(skiersRoot, s.skiersHandler.HandlePost)
	r.Post(skiersRoot+"/*", s.skiersHandler.HandlePost)
}

// Handler builds a router and registers the server's routes on it.
func (s *Server) Handler() http.Handler {
	r := NewRouter()
	s.Register(r)
	return r
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
