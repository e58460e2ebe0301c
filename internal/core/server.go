// Package core is the HTTP chassis of the report service: the chi router,
// the cross-cutting middleware, the JSON response envelope and the health
// endpoint. Domain handlers are mounted by the entry point through
// V1RouteRegistrars.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"safetyreports/internal/config"
)

// Server holds the router and what the middleware and health check need.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	// HealthProbes are checked concurrently by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. The entry point
	// fills this in to keep handler packages out of core's imports.
	V1RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer validates its inputs and returns a Server with an empty router.
// Call MountRoutes after filling in probes and registrars.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}
