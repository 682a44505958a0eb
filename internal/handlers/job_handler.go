package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
)

// JobHandler manages background crawl jobs over the API.
type JobHandler struct {
	scheduler interfaces.SchedulerService
	jobs      interfaces.JobStorage
	config    *common.Config
	logger    arbor.ILogger
}

func NewJobHandler(scheduler interfaces.SchedulerService, jobs interfaces.JobStorage, config *common.Config, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		scheduler: scheduler,
		jobs:      jobs,
		config:    config,
		logger:    logger,
	}
}

type createJobRequest struct {
	SeedURL  string              `json:"seed_url"`
	Priority string              `json:"priority,omitempty"`
	Config   *models.CrawlConfig `json:"config,omitempty"`
}

// CreateJobHandler schedules a background crawl.
// POST /api/jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := models.ValidateSeed(req.SeedURL); err != nil {
		WriteKindError(w, err)
		return
	}
	if err := rejectPrivateSeed(h.config, req.SeedURL); err != nil {
		WriteKindError(w, err)
		return
	}

	job := &models.CrawlJob{
		SeedURL:  req.SeedURL,
		Priority: models.ParsePriority(req.Priority),
	}
	if req.Config != nil {
		job.Config = *req.Config
	}

	if err := h.scheduler.Schedule(r.Context(), job); err != nil {
		h.logger.Error().Err(err).Str("seed_url", req.SeedURL).Msg("Failed to schedule job")
		WriteKindError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"job_id":   job.JobID,
		"state":    job.State,
		"priority": job.Priority.String(),
	})
}

// ListJobsHandler returns jobs, optionally filtered by state.
// GET /api/jobs?state=&limit=&offset=
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opts := &interfaces.ListOptions{
		Limit:  QueryInt(r, "limit", 50),
		Offset: QueryInt(r, "offset", 0),
		State:  r.URL.Query().Get("state"),
	}

	jobs, err := h.jobs.ListJobs(ctx, opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteKindError(w, err)
		return
	}

	counts, err := h.jobs.CountJobsByState(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count jobs by state")
		counts = map[string]int{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   jobs,
		"counts": counts,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// HandleJobByID dispatches /api/jobs/{id} requests.
func (h *JobHandler) HandleJobByID(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	jobID = strings.Trim(jobID, "/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	switch r.Method {
	case "GET":
		h.getJob(w, r, jobID)
	case "DELETE":
		h.cancelJob(w, r, jobID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getJob returns a single job by ID.
// GET /api/jobs/{id}
func (h *JobHandler) getJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		h.logger.Debug().Err(err).Str("job_id", jobID).Msg("Job lookup failed")
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// cancelJob cancels a queued or running job. Finished jobs are left as-is.
// DELETE /api/jobs/{id}
func (h *JobHandler) cancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, err := h.jobs.GetJob(r.Context(), jobID); err != nil {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}

	if err := h.scheduler.Cancel(r.Context(), jobID); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel job")
		WriteKindError(w, err)
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Job cancellation requested")

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"state":  job.State,
	})
}
