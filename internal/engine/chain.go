package engine

import (
	"context"
	"errors"
	"time"

	"github.com/goonidz/purple-sub000/internal/domain"
)

// pipelineSuccessor maps each step of the unattended pipeline to the one that
// follows it. Transcription deliberately has no successor: scene splitting is
// an interactive decision taken between transcription and prompts.
var pipelineSuccessor = map[domain.JobType]domain.JobType{
	domain.JobTypePrompts: domain.JobTypeImages,
	domain.JobTypeImages:  domain.JobTypeThumbnails,
}

// chainNext launches the pipeline successor of a completed job when the job
// ran in semi-auto mode. Chained jobs inherit semi-auto and skip work that
// already exists, so a re-run of an early step does not redo later ones.
func (e *Engine) chainNext(job *domain.GenerationJob) {
	if !job.Metadata.SemiAuto() {
		return
	}
	next, ok := pipelineSuccessor[job.Type]
	if !ok {
		return
	}

	ctx, cancelFn := context.WithTimeout(e.rootCtx, 30*time.Second)
	defer cancelFn()

	logger := e.log.With().
		Str("project_id", job.ProjectID).
		Str("from", string(job.Type)).
		Str("to", string(next)).
		Logger()

	meta := domain.Metadata{
		domain.MetaSemiAutoMode: true,
		domain.MetaSkipExisting: true,
	}
	if next == domain.JobTypeThumbnails {
		project, err := e.projects.GetByID(ctx, job.ProjectID)
		if err != nil {
			logger.Error().Err(err).Msg("pipeline chain aborted")
			return
		}
		preset := project.ThumbnailPreset
		if preset == nil {
			logger.Info().Msg("no thumbnail preset, pipeline ends here")
			return
		}
		meta[domain.MetaVideoTitle] = project.Name
		meta[domain.MetaVideoScript] = project.VideoScript()
		meta[domain.MetaExampleURLs] = preset.ExampleURLs
		if preset.CharacterRefURL != "" {
			meta[domain.MetaCharacterRefURL] = preset.CharacterRefURL
		}
		if preset.CustomPrompt != "" {
			meta[domain.MetaCustomPrompt] = preset.CustomPrompt
		}
	}

	chained, err := e.Submit(ctx, SubmitRequest{
		ProjectID: job.ProjectID,
		UserID:    job.UserID,
		Type:      next,
		Metadata:  meta,
	})
	if err != nil {
		if errors.Is(err, domain.ErrJobConflict) {
			logger.Info().Msg("pipeline successor already running")
			return
		}
		logger.Error().Err(err).Msg("pipeline chain failed")
		return
	}
	logger.Info().Str("job_id", chained.ID).Msg("pipeline successor started")
}
