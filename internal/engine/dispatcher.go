package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goonidz/purple-sub000/internal/domain"
	"github.com/goonidz/purple-sub000/internal/telemetry"
)

// SubmitRequest describes one job submission.
type SubmitRequest struct {
	ProjectID string
	UserID    string
	Type      domain.JobType
	Metadata  domain.Metadata
}

// Submit validates the request, rejects it when an equivalent job is already
// active, records the job and launches it on a detached goroutine. The
// returned job is in pending state with its total already computed.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*domain.GenerationJob, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidJobType, req.Type)
	}
	proc := e.procs[req.Type]

	project, err := e.projects.GetByID(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	meta := req.Metadata.Clone()
	if meta == nil {
		meta = domain.Metadata{}
	}

	// Sweep jobs that died without reaching a terminal state, so a crashed
	// run does not block resubmission forever.
	cutoff := time.Now().Add(-e.cfg.StaleJobThreshold)
	if swept, err := e.jobs.FailStale(ctx, cutoff); err != nil {
		e.log.Warn().Err(err).Msg("stale job sweep failed")
	} else if swept > 0 {
		e.log.Info().Int("count", swept).Msg("failed stale jobs before dispatch")
	}

	if err := e.checkConflict(ctx, req.ProjectID, req.Type, meta); err != nil {
		return nil, err
	}

	total, err := proc.Total(ctx, project, meta)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	job := &domain.GenerationJob{
		ID:        uuid.NewString(),
		ProjectID: req.ProjectID,
		UserID:    req.UserID,
		Type:      req.Type,
		Status:    domain.JobStatusPending,
		Total:     total,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("engine: create job: %w", err)
	}

	// The job runs on the engine's root context, not the request context, so
	// it survives the HTTP response.
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				e.log.Error().Interface("panic", rec).Str("job_id", job.ID).Msg("job panicked")
				msg := fmt.Sprintf("internal error: %v", rec)
				e.finishJob(job, domain.JobStatusFailed, &msg)
			}
		}()
		e.runJob(job)
	}()

	return job, nil
}

// checkConflict enforces one active job per (project, type). Single-scene
// types only conflict with an active job targeting the same scene index.
func (e *Engine) checkConflict(ctx context.Context, projectID string, jobType domain.JobType, meta domain.Metadata) error {
	active, err := e.jobs.ListActive(ctx, projectID, jobType)
	if err != nil {
		return fmt.Errorf("engine: list active jobs: %w", err)
	}
	if len(active) == 0 {
		return nil
	}
	if !jobType.SingleScene() {
		return &domain.JobConflictError{ExistingJobID: active[0].ID}
	}
	scene, err := meta.Scene()
	if err != nil {
		return err
	}
	for _, existing := range active {
		if idx, ok := existing.Metadata.Int(domain.MetaSceneIndex); ok && idx == scene.SceneIndex {
			return &domain.JobConflictError{ExistingJobID: existing.ID}
		}
	}
	return nil
}

// Cancel requests cooperative cancellation: the job flips to cancelled
// immediately and the running processor notices at its next chunk boundary.
// Cancelling an already terminal job is a no-op failure surfaced as
// ErrNotFound by the guarded status update.
func (e *Engine) Cancel(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	job, err := e.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	now := time.Now()
	msg := "cancelled by user"
	if err := e.jobs.UpdateStatus(ctx, jobID, domain.JobStatusCancelled, &msg, &now); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Lost the race against the job finishing; report what stands.
			return e.jobs.GetByID(ctx, jobID)
		}
		return nil, err
	}
	telemetry.JobsCompleted.WithLabelValues(string(job.Type), string(domain.JobStatusCancelled)).Inc()
	return e.jobs.GetByID(ctx, jobID)
}

// runJob drives one job from pending to a terminal state.
func (e *Engine) runJob(job *domain.GenerationJob) {
	ctx := e.rootCtx
	start := time.Now()
	logger := e.log.With().
		Str("job_id", job.ID).
		Str("project_id", job.ProjectID).
		Str("type", string(job.Type)).
		Logger()

	telemetry.JobsStarted.WithLabelValues(string(job.Type)).Inc()
	telemetry.JobsInFlight.Inc()
	defer telemetry.JobsInFlight.Dec()
	defer func() {
		telemetry.JobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())
	}()

	if err := e.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusProcessing, nil, nil); err != nil {
		// Already cancelled before it started, or swept.
		logger.Warn().Err(err).Msg("job not startable")
		return
	}

	project, err := e.projects.GetByID(ctx, job.ProjectID)
	if err != nil {
		msg := fmt.Sprintf("load project: %v", err)
		e.finishJob(job, domain.JobStatusFailed, &msg)
		logger.Error().Err(err).Msg("job failed")
		return
	}

	runErr := e.procs[job.Type].Run(ctx, job, project)
	switch {
	case runErr == nil:
		e.finishJob(job, domain.JobStatusCompleted, nil)
		logger.Info().Dur("took", time.Since(start)).Msg("job completed")
		e.chainNext(job)
	case errors.Is(runErr, errJobCancelled):
		// Cancel already wrote the terminal state.
		logger.Info().Msg("job cancelled")
	case errors.Is(runErr, context.Canceled):
		msg := "interrupted by shutdown"
		e.finishJob(job, domain.JobStatusFailed, &msg)
		logger.Warn().Msg("job interrupted by shutdown")
	default:
		msg := runErr.Error()
		e.finishJob(job, domain.JobStatusFailed, &msg)
		logger.Error().Err(runErr).Msg("job failed")
	}
}

// finishJob writes the terminal state. The repository guard makes this a
// no-op when cancellation or the janitor got there first.
func (e *Engine) finishJob(job *domain.GenerationJob, status domain.JobStatus, errMsg *string) {
	// Shutdown must not prevent recording the outcome.
	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFn()

	now := time.Now()
	err := e.jobs.UpdateStatus(ctx, job.ID, status, errMsg, &now)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return
		}
		e.log.Error().Err(err).Str("job_id", job.ID).Msg("record job outcome failed")
		return
	}
	telemetry.JobsCompleted.WithLabelValues(string(job.Type), string(status)).Inc()
}
