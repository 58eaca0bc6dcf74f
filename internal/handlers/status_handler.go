package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/vera/internal/common"
)

// AppStatus is the body of GET /api/status
type AppStatus struct {
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
	Scheduler bool      `json:"scheduler_running"`
	Cache     bool      `json:"cache_enabled"`
	Fetch     bool      `json:"fetch_enabled"`
}

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	scheduler JobScheduler
	cache     bool
	fetch     bool
	startedAt time.Time
}

// NewStatusHandler creates a new StatusHandler. sched may be nil.
func NewStatusHandler(sched JobScheduler, cacheEnabled, fetchEnabled bool) *StatusHandler {
	return &StatusHandler{
		scheduler: sched,
		cache:     cacheEnabled,
		fetch:     fetchEnabled,
		startedAt: time.Now(),
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, AppStatus{
		Version:   common.GetFullVersion(),
		StartedAt: h.startedAt,
		Uptime:    time.Since(h.startedAt).Truncate(time.Second).String(),
		Scheduler: h.scheduler != nil && h.scheduler.IsRunning(),
		Cache:     h.cache,
		Fetch:     h.fetch,
	})
}

// HealthHandler handles GET /healthz. It fails once a configured scheduler has stopped.
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.scheduler != nil && !h.scheduler.IsRunning() {
		WriteError(w, http.StatusServiceUnavailable, "scheduler stopped")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
