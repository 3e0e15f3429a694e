package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrJobConflict       = errors.New("job already running")
	ErrStaleRevision     = errors.New("stale project revision")
	ErrInvalidSceneIndex = errors.New("scene index out of range")
	ErrInvalidMetadata   = errors.New("invalid job metadata")
	ErrNoScenes          = errors.New("project has no scenes")
	ErrInvalidJobType    = errors.New("unsupported job type")
)

// JobConflictError rejects a submit because an equivalent job is already
// pending or processing. It matches ErrJobConflict under errors.Is so the
// HTTP layer can surface the existing job id.
type JobConflictError struct {
	ExistingJobID string
}

func (e *JobConflictError) Error() string {
	return fmt.Sprintf("a job of this type is already running (job %s)", e.ExistingJobID)
}

func (e *JobConflictError) Is(target error) bool {
	return target == ErrJobConflict
}
