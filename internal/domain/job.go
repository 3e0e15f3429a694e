package domain

import "time"

// JobType enumerates the generation steps the engine can run in the background.
type JobType string

const (
	JobTypeTranscription JobType = "transcription"
	JobTypePrompts       JobType = "prompts"
	JobTypeImages        JobType = "images"
	JobTypeThumbnails    JobType = "thumbnails"
	JobTypeTestImages    JobType = "test_images"
	JobTypeSinglePrompt  JobType = "single_prompt"
	JobTypeSingleImage   JobType = "single_image"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeTranscription, JobTypePrompts, JobTypeImages, JobTypeThumbnails,
		JobTypeTestImages, JobTypeSinglePrompt, JobTypeSingleImage:
		return true
	}
	return false
}

// SingleScene reports whether t targets one explicit scene index. Several such
// jobs may run concurrently on the same project as long as their scene indexes
// differ.
func (t JobType) SingleScene() bool {
	return t == JobTypeSinglePrompt || t == JobTypeSingleImage
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Active reports whether the status counts against the one-active-job rule.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// Terminal reports whether the status can never change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// GenerationJob is the unit of schedulable work. Progress counts only work
// items that completed without error and never decreases; a job completed with
// Progress < Total means some items failed.
type GenerationJob struct {
	ID           string
	ProjectID    string
	UserID       string
	Type         JobType
	Status       JobStatus
	Progress     int
	Total        int
	Metadata     Metadata
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}
