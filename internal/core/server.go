// Package core provides the API chassis for the Telloo notification service.
// It creates a chi router served by standard HTTP and enforces cross-cutting
// concerns -- security, logging, and error handling -- before requests reach
// domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"telloo/internal/config"
	"telloo/internal/types"
)

// Authenticator resolves a bearer token to a Caller. Injected for
// testability; the production implementation verifies API keys against
// their stored bcrypt hashes.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (types.Caller, error)
}

// Server encapsulates all dependencies for the notification API, allowing
// for easy injection during testing and distinct configuration for
// different environments.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Authenticator Authenticator

	// V1RouteRegistrars are populated by the application entry point to
	// mount domain handler routes under /v1. This indirection avoids import
	// cycles between core and handler packages.
	V1RouteRegistrars []func(chi.Router)

	// Internal router
	router *chi.Mux
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. The caller is responsible for mounting routes
// (via MountRoutes) after construction; this separation allows tests to
// customize route registration.
func NewServer(
	cfg *config.Config,
	logger *slog.Logger,
) (*Server, error) {
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

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}
