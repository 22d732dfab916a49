// Package httpserver provides the HTTP REST API for the citation discovery
// service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/papersources"
)

// Resolver is the orchestration surface the API exposes.
// *resolver.Orchestrator implements it.
type Resolver interface {
	Resolve(ctx context.Context, ref domain.ParsedReference) []domain.Candidate
	ResolveWith(ctx context.Context, source domain.SourceType, ref domain.ParsedReference) ([]domain.Candidate, error)
	Discover(ctx context.Context, source domain.SourceType, topic string, limit int, filters domain.DiscoveryFilters) ([]domain.Candidate, error)
}

// Providers looks up registered provider adapters.
// *papersources.Registry implements it.
type Providers interface {
	All() []papersources.Adapter
	Get(source domain.SourceType) (papersources.Adapter, bool)
}

// Recorder receives per-request telemetry.
type Recorder interface {
	RecordHTTPRequest(route, method string, status int, d time.Duration)
}

// Server is the HTTP REST API server.
type Server struct {
	router         chi.Router
	httpServer     *http.Server
	resolver       Resolver
	providers      Providers
	ready          func(context.Context) error
	recorder       Recorder
	validate       *validator.Validate
	listingTimeout time.Duration
	logger         zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// ListingTimeout bounds citation-graph and category listings.
	ListingTimeout time.Duration
}

// Option customizes a Server.
type Option func(*Server)

// WithReadiness sets the check behind /readyz.
func WithReadiness(check func(context.Context) error) Option {
	return func(s *Server) { s.ready = check }
}

// WithRecorder records request counts and latencies.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config, resolver Resolver, providers Providers, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		resolver:       resolver,
		providers:      providers,
		validate:       newValidator(),
		listingTimeout: cfg.ListingTimeout,
		logger:         logger.With().Str("component", "http-server").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLogMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/references/resolve", s.resolveReference)
		r.Post("/topics/discover", s.discoverTopic)
		r.Get("/providers", s.listProviders)

		r.Get("/papers/{paperID}/citations", s.paperCitations)
		r.Get("/papers/{paperID}/references", s.paperReferences)
		r.Get("/papers/{paperID}/related", s.paperRelated)

		r.Get("/arxiv/categories/{category}/recent", s.arxivRecent)
		r.Get("/arxiv/categories/{category}/papers", s.arxivCategoryPapers)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness only.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler runs the readiness check, if any.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
