package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vera/internal/services/scheduler"
)

// JobScheduler is the part of the scheduler the API exposes
type JobScheduler interface {
	IsRunning() bool
	RunNow(name string) error
	GetJobStatus(name string) (*scheduler.JobStatus, error)
	GetAllJobStatuses() []*scheduler.JobStatus
}

// SchedulerHandler handles scheduler-related endpoints
type SchedulerHandler struct {
	scheduler JobScheduler
	logger    arbor.ILogger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(sched JobScheduler, logger arbor.ILogger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: sched,
		logger:    logger,
	}
}

// ListJobsHandler handles GET /api/jobs
func (h *SchedulerHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"running": h.scheduler.IsRunning(),
		"jobs":    h.scheduler.GetAllJobStatuses(),
	})
}

// RunJobHandler handles POST /api/jobs/{name}/run. The job runs in the
// background; its outcome shows up in the job status.
func (h *SchedulerHandler) RunJobHandler(w http.ResponseWriter, r *http.Request, name string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	status, err := h.scheduler.GetJobStatus(name)
	if err != nil {
		WriteErr(w, err)
		return
	}
	if status.IsRunning {
		WriteError(w, http.StatusConflict, "job "+name+" is already running")
		return
	}

	go func() {
		if err := h.scheduler.RunNow(name); err != nil {
			h.logger.Warn().Err(err).Str("job_name", name).Msg("Manual job run failed")
		}
	}()
	WriteStarted(w, "job "+name+" started")
}
