package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goonidz/purple-sub000/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record. A submit that races another one of the
// same type past the dispatcher's conflict check trips the partial unique
// index and comes back as a conflict.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	query := `
INSERT INTO generation_jobs (id, project_id, user_id, type, status, progress, total, metadata, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.ProjectID,
		job.UserID,
		job.Type,
		job.Status,
		job.Progress,
		job.Total,
		domain.MarshalMetadata(job.Metadata),
		job.ErrorMessage,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &domain.JobConflictError{}
	}
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	query := `
SELECT id, project_id, user_id, type, status, progress, total, metadata, error_message, created_at, updated_at, completed_at
FROM generation_jobs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	return scanJob(row)
}

// UpdateStatus moves a job to status. Every transition is guarded on the
// current row state: terminal writes require the row to still be active, so
// the first terminal writer wins, and the processing transition requires the
// row to still be pending, so a job cancelled or swept before its goroutine
// started stays terminal. Losers get ErrNotFound.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg *string, completedAt *time.Time) error {
	query := `
UPDATE generation_jobs
SET status = $2,
    error_message = COALESCE($3, error_message),
    completed_at = COALESCE($4, completed_at),
    updated_at = NOW()
WHERE id = $1 AND status IN ('pending', 'processing');
`
	if status == domain.JobStatusProcessing {
		query = `
UPDATE generation_jobs
SET status = $2,
    error_message = COALESCE($3, error_message),
    completed_at = COALESCE($4, completed_at),
    updated_at = NOW()
WHERE id = $1 AND status = 'pending';
`
	}
	tag, err := r.pool.Exec(ctx, query, jobID, status, errMsg, completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateProgress bumps the completed-item counter. Terminal rows are left
// untouched so a late worker write cannot dirty a finished job.
func (r *JobRepositoryPG) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	query := `
UPDATE generation_jobs
SET progress = GREATEST(progress, $2),
    updated_at = NOW()
WHERE id = $1 AND status IN ('pending', 'processing');
`
	tag, err := r.pool.Exec(ctx, query, jobID, progress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateMetadata merges patch into the stored metadata object. Keys in patch
// overwrite, unmentioned keys survive.
func (r *JobRepositoryPG) UpdateMetadata(ctx context.Context, jobID string, patch domain.Metadata) error {
	if len(patch) == 0 {
		return nil
	}
	query := `
UPDATE generation_jobs
SET metadata = metadata || $2::jsonb,
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, jobID, domain.MarshalMetadata(patch))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListActive returns the pending and processing jobs of a project, optionally
// filtered by type. Pass "" for all types.
func (r *JobRepositoryPG) ListActive(ctx context.Context, projectID string, jobType domain.JobType) ([]domain.GenerationJob, error) {
	query := `
SELECT id, project_id, user_id, type, status, progress, total, metadata, error_message, created_at, updated_at, completed_at
FROM generation_jobs
WHERE project_id = $1
  AND status IN ('pending', 'processing')
  AND ($2 = '' OR type = $2)
ORDER BY created_at;
`
	rows, err := r.pool.Query(ctx, query, projectID, string(jobType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// FailStale marks active jobs whose last heartbeat predates cutoff as failed.
func (r *JobRepositoryPG) FailStale(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
UPDATE generation_jobs
SET status = 'failed',
    error_message = 'job timed out without progress',
    completed_at = NOW(),
    updated_at = NOW()
WHERE status IN ('pending', 'processing')
  AND updated_at < $1;
`
	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var (
		job      domain.GenerationJob
		metaJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.ProjectID,
		&job.UserID,
		&job.Type,
		&job.Status,
		&job.Progress,
		&job.Total,
		&metaJSON,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &job.Metadata); err != nil {
			return nil, err
		}
	}
	return &job, nil
}
