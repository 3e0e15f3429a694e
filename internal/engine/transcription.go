package engine

import (
	"context"
	"fmt"

	"github.com/goonidz/purple-sub000/internal/domain"
)

// transcriptionProcessor turns the project's audio into a timestamped
// transcript. One indivisible work item.
type transcriptionProcessor struct {
	e *Engine
}

func (p *transcriptionProcessor) Total(ctx context.Context, project *domain.Project, meta domain.Metadata) (int, error) {
	if _, err := transcriptionAudioURL(project, meta); err != nil {
		return 0, err
	}
	return 1, nil
}

func (p *transcriptionProcessor) Run(ctx context.Context, job *domain.GenerationJob, project *domain.Project) error {
	audioURL, err := transcriptionAudioURL(project, job.Metadata)
	if err != nil {
		return err
	}

	transcript, err := p.e.transcriber.Transcribe(ctx, audioURL)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	if err := p.e.projects.SaveTranscript(ctx, project.ID, transcript, audioURL); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	if err := p.e.jobs.UpdateProgress(ctx, job.ID, 1); err != nil {
		p.e.log.Warn().Err(err).Str("job_id", job.ID).Msg("progress update failed")
	}
	return nil
}

// transcriptionAudioURL resolves the audio source, preferring the metadata
// value over the one stored on the project.
func transcriptionAudioURL(project *domain.Project, meta domain.Metadata) (string, error) {
	if tm, err := meta.Transcription(); err == nil {
		return tm.AudioURL, nil
	}
	if project.AudioURL != "" {
		return project.AudioURL, nil
	}
	return "", fmt.Errorf("%w: no audio source in %s or on the project", domain.ErrInvalidMetadata, domain.MetaAudioURL)
}
