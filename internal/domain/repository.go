package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for generation job records. All updates
// touch only the named columns so concurrent progress and metadata writes do
// not clobber each other.
type JobRepository interface {
	Create(ctx context.Context, job *GenerationJob) error
	GetByID(ctx context.Context, jobID string) (*GenerationJob, error)
	// UpdateStatus moves the job to status. Transitions into a terminal
	// status only succeed while the job is still active, which makes the
	// terminal transition exactly-once. Returns ErrNotFound when no row was
	// updated.
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, errMsg *string, completedAt *time.Time) error
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	// UpdateMetadata merges patch into the stored metadata bag.
	UpdateMetadata(ctx context.Context, jobID string, patch Metadata) error
	ListActive(ctx context.Context, projectID string, jobType JobType) ([]GenerationJob, error)
	// FailStale marks active jobs not updated since cutoff as failed and
	// returns how many were swept.
	FailStale(ctx context.Context, cutoff time.Time) (int, error)
}

// ProjectRepository defines access to the project state the processors
// mutate.
type ProjectRepository interface {
	GetByID(ctx context.Context, projectID string) (*Project, error)
	SaveTranscript(ctx context.Context, projectID string, transcript *Transcript, audioURL string) error
	SaveSummary(ctx context.Context, projectID, summary string) error
	// SavePrompts replaces the prompts array. expectedRevision must equal the
	// revision the caller read; otherwise ErrStaleRevision is returned and
	// nothing is written.
	SavePrompts(ctx context.Context, projectID string, prompts []*PromptEntry, expectedRevision int64) error
}

// ThumbnailHistoryRepository archives successfully generated thumbnails.
type ThumbnailHistoryRepository interface {
	Add(ctx context.Context, projectID string, thumbs []GeneratedThumbnail) error
}
