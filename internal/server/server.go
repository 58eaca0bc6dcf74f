package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/vera/internal/app"
	"github.com/ternarybob/vera/internal/handlers"
	"github.com/ternarybob/vera/internal/services/scheduler"
)

// Server manages the HTTP server and routes
type Server struct {
	app    *app.App
	router *http.ServeMux
	server *http.Server

	assetHandler     *handlers.AssetHandler
	snapshotHandler  *handlers.SnapshotHandler
	schedulerHandler *handlers.SchedulerHandler
	statusHandler    *handlers.StatusHandler
}

// New creates the API server. sched may be nil when no jobs run.
func New(application *app.App, sched *scheduler.Service) *Server {
	s := &Server{
		app: application,
		assetHandler: handlers.NewAssetHandler(
			application.Analysis, application.Reports, application.RunOptions, application.Logger),
		snapshotHandler: handlers.NewSnapshotHandler(application.Snapshots, application.Resolver, application.Logger),
	}

	var jobs handlers.JobScheduler
	if sched != nil {
		jobs = sched
		s.schedulerHandler = handlers.NewSchedulerHandler(sched, application.Logger)
	}
	s.statusHandler = handlers.NewStatusHandler(jobs, application.Cache != nil, application.Fetch != nil)

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:              application.Config.Server.Address(),
		Handler:           s.withMiddleware(s.router),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// PDF rendering of a fresh snapshot can take a few seconds
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler with middleware, for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.app.Logger.Info().
		Str("address", s.server.Addr).
		Bool("metrics", s.app.Config.Metrics.Enabled).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.app.Logger.Info().Msg("HTTP server stopped")
	return nil
}
