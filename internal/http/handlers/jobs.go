package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/goonidz/purple-sub000/internal/domain"
	"github.com/goonidz/purple-sub000/internal/engine"
)

// SubmitJobReq is the submission payload. Metadata is job-type specific and
// passed through to the engine.
type SubmitJobReq struct {
	Type     string          `json:"type"`
	Metadata domain.Metadata `json:"metadata"`
}

// JobResp is the wire shape of a job record.
type JobResp struct {
	ID           string          `json:"jobId"`
	ProjectID    string          `json:"projectId"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Progress     int             `json:"progress"`
	Total        int             `json:"total"`
	Metadata     domain.Metadata `json:"metadata,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

func toJobResp(job *domain.GenerationJob) JobResp {
	return JobResp{
		ID:           job.ID,
		ProjectID:    job.ProjectID,
		Type:         string(job.Type),
		Status:       string(job.Status),
		Progress:     job.Progress,
		Total:        job.Total,
		Metadata:     job.Metadata,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
		CompletedAt:  job.CompletedAt,
	}
}

// SubmitJob starts a background generation job for a project. The work keeps
// running after the 202 response; progress is read through GetJob.
func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req SubmitJobReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.jsonError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	jobType := domain.JobType(req.Type)
	if !jobType.Valid() {
		a.jsonError(w, http.StatusBadRequest, "unsupported job type: "+req.Type)
		return
	}

	job, err := a.Engine.Submit(r.Context(), engine.SubmitRequest{
		ProjectID: projectID,
		UserID:    r.Header.Get("X-User-ID"),
		Type:      jobType,
		Metadata:  req.Metadata,
	})
	if err != nil {
		var conflict *domain.JobConflictError
		switch {
		case errors.As(err, &conflict):
			a.json(w, http.StatusConflict, map[string]string{
				"error":         "a job of this type is already running",
				"existingJobId": conflict.ExistingJobID,
			})
		case errors.Is(err, domain.ErrNotFound):
			a.jsonError(w, http.StatusNotFound, "project not found")
		case errors.Is(err, domain.ErrNoScenes),
			errors.Is(err, domain.ErrInvalidSceneIndex),
			errors.Is(err, domain.ErrInvalidMetadata),
			errors.Is(err, domain.ErrInvalidJobType):
			a.jsonError(w, http.StatusBadRequest, err.Error())
		default:
			a.Log.Error().Err(err).Str("project_id", projectID).Msg("job submit failed")
			a.jsonError(w, http.StatusInternalServerError, "could not start job")
		}
		return
	}

	a.json(w, http.StatusAccepted, map[string]any{
		"jobId":  job.ID,
		"status": job.Status,
		"total":  job.Total,
	})
}

// GetJob returns the current state of one job.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.jsonError(w, http.StatusNotFound, "job not found")
			return
		}
		a.Log.Error().Err(err).Str("job_id", jobID).Msg("job lookup failed")
		a.jsonError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	a.json(w, http.StatusOK, toJobResp(job))
}

// ListActiveJobs returns the pending and processing jobs of a project,
// optionally filtered by ?type=.
func (a *App) ListActiveJobs(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	jobType := domain.JobType(r.URL.Query().Get("type"))
	if jobType != "" && !jobType.Valid() {
		a.jsonError(w, http.StatusBadRequest, "unsupported job type: "+string(jobType))
		return
	}

	jobs, err := a.Jobs.ListActive(r.Context(), projectID, jobType)
	if err != nil {
		a.Log.Error().Err(err).Str("project_id", projectID).Msg("active job list failed")
		a.jsonError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}

	out := make([]JobResp, 0, len(jobs))
	for i := range jobs {
		out = append(out, toJobResp(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": out})
}

// CancelJob requests cooperative cancellation. The response carries the job
// state after the request; a job already finished stays in its terminal
// state.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := a.Engine.Cancel(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.jsonError(w, http.StatusNotFound, "job not found")
			return
		}
		a.Log.Error().Err(err).Str("job_id", jobID).Msg("job cancel failed")
		a.jsonError(w, http.StatusInternalServerError, "could not cancel job")
		return
	}
	a.json(w, http.StatusOK, toJobResp(job))
}
