package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.statusHandler.HealthHandler)
	mux.HandleFunc("/api/status", s.statusHandler.GetStatusHandler)

	if s.app.Config.Metrics.Enabled {
		mux.Handle("/metrics", s.app.Metrics.Handler())
	}

	// API routes - Snapshots
	mux.HandleFunc("/api/snapshots", s.snapshotHandler.ListHandler) // GET - latest per asset
	mux.HandleFunc("/api/snapshots/", s.handleSnapshotRoutes)       // GET/DELETE /{id}

	// API routes - Assets: /api/assets/{symbol}/dashboard|report|history
	mux.HandleFunc("/api/assets/", s.handleAssetRoutes)

	// API routes - Jobs
	if s.schedulerHandler != nil {
		mux.HandleFunc("/api/jobs", s.schedulerHandler.ListJobsHandler) // GET - job statuses
		mux.HandleFunc("/api/jobs/", s.handleJobRoutes)                 // POST /{name}/run
	}

	return mux
}

func (s *Server) handleSnapshotRoutes(w http.ResponseWriter, r *http.Request) {
	RouteResourceItem(w, r, "/api/snapshots/", s.snapshotHandler.GetHandler, s.snapshotHandler.DeleteHandler)
}

func (s *Server) handleAssetRoutes(w http.ResponseWriter, r *http.Request) {
	routes := []PathSuffixRouter{
		{Suffix: "/dashboard", Handler: s.assetHandler.DashboardHandler},
		{Suffix: "/report", Handler: s.assetHandler.ReportHandler},
		{Suffix: "/history", Handler: s.snapshotHandler.HistoryHandler},
	}
	if !RouteByPathSuffix(w, r, "/api/assets/", routes) {
		http.NotFound(w, r)
	}
}

func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	routes := []PathSuffixRouter{
		{Suffix: "/run", Handler: s.schedulerHandler.RunJobHandler},
	}
	if !RouteByPathSuffix(w, r, "/api/jobs/", routes) {
		http.NotFound(w, r)
	}
}
