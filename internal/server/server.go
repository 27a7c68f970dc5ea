package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nahidhasan98/netconf-relay/internal/config"
	"github.com/nahidhasan98/netconf-relay/internal/handlers"
	"github.com/nahidhasan98/netconf-relay/internal/logger"
	"github.com/nahidhasan98/netconf-relay/internal/middleware"
	"github.com/nahidhasan98/netconf-relay/internal/telemetry"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	handler    *handlers.Handler
	middleware *middleware.Middleware
	router     http.Handler
	log        *logger.Logger
}

// New creates a new HTTP server
func New(cfg *config.Config, handler *handlers.Handler, log *logger.Logger) *Server {
	s := &Server{
		handler:    handler,
		middleware: middleware.New(log, cfg.RateLimit.RequestsPerMinute),
		log:        log,
	}
	s.router = s.routes(cfg)
	return s
}

// Handler returns the routed handler with the middleware chain applied
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes(cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	if cfg.Telemetry.Enabled {
		r.Use(telemetry.HTTPMiddleware(cfg.Telemetry.ServiceName))
	}
	r.Use(s.middleware.RequestID)
	r.Use(s.middleware.Recovery)
	r.Use(s.middleware.Logging)
	r.Use(s.middleware.Security)
	r.MethodNotAllowed(s.handler.MethodNotAllowed)

	r.Get("/healthz", s.handler.HealthCheck)
	r.Get("/health", s.handler.HealthCheck)

	r.Group(func(r chi.Router) {
		if cfg.RateLimit.Enabled() {
			r.Use(s.middleware.RateLimit)
		}
		r.Post("/hook/push", s.handler.PushHook)
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start(cfg *config.Config) error {
	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	s.log.Infof("HTTP server listening on %s", cfg.Server.Address())

	// Start server in a goroutine
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatal("HTTP server error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.log.Info("HTTP server shutdown complete")
	return nil
}
