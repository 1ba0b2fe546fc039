package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/auth"
	"github.com/insuredocs/docquery/internal/cache"
	"github.com/insuredocs/docquery/internal/jobs"
	"github.com/insuredocs/docquery/internal/models"
)

type JobsHandler struct {
	queue jobs.Store
	bus   *cache.ProgressBus
}

func NewJobsHandler(queue jobs.Store, bus *cache.ProgressBus) *JobsHandler {
	return &JobsHandler{queue: queue, bus: bus}
}

func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.authorizedJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Progress streams stage and percent updates as server-sent events until the
// job reaches a terminal state or the client hangs up. The current state is
// sent first so late subscribers are never behind.
func (h *JobsHandler) Progress(w http.ResponseWriter, r *http.Request) {
	job, ok := h.authorizedJob(w, r)
	if !ok {
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	snapshot := models.JobProgress{
		JobID:   job.ID,
		Stage:   job.Stage,
		Percent: job.Progress,
		Status:  job.Status,
		Error:   job.ErrorMessage,
	}
	if err := sse.send("progress", snapshot); err != nil {
		return
	}
	if terminal(job.Status) {
		return
	}

	updates, cancel, err := h.bus.Subscribe(r.Context(), job.ID.String())
	if err != nil {
		sse.send("error", map[string]string{"error": "progress subscription failed"})
		return
	}
	defer cancel()

	for {
		select {
		case p, open := <-updates:
			if !open {
				return
			}
			if err := sse.send("progress", p); err != nil {
				return
			}
			if terminal(p.Status) {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (h *JobsHandler) authorizedJob(w http.ResponseWriter, r *http.Request) (*models.ProcessingJob, bool) {
	id := auth.IdentityFromContext(r.Context())
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return nil, false
	}
	job, err := h.queue.Get(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if job.TenantID != id.TenantID {
		writeError(w, http.StatusNotFound, models.ErrJobNotFound.Error())
		return nil, false
	}
	return job, true
}

func terminal(status string) bool {
	return status == models.JobStatusCompleted || status == models.JobStatusFailed
}
