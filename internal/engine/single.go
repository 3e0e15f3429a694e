package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/goonidz/purple-sub000/internal/domain"
	"github.com/goonidz/purple-sub000/internal/providers/prompt"
)

// singlePromptProcessor regenerates the prompt of one scene. The scene's
// existing image survives the rewrite.
type singlePromptProcessor struct {
	e *Engine
}

func (p *singlePromptProcessor) Total(ctx context.Context, project *domain.Project, meta domain.Metadata) (int, error) {
	if _, err := sceneIndexFor(project, meta); err != nil {
		return 0, err
	}
	return 1, nil
}

func (p *singlePromptProcessor) Run(ctx context.Context, job *domain.GenerationJob, project *domain.Project) error {
	idx, err := sceneIndexFor(project, job.Metadata)
	if err != nil {
		return err
	}
	scene := project.Scenes[idx]

	generated, err := p.e.prompts.GeneratePrompt(ctx, prompt.SceneRequest{
		Scene:              scene.Text,
		Summary:            project.Summary,
		ExamplePrompts:     strings.Join(project.ExamplePrompts, "\n"),
		SceneIndex:         idx,
		TotalScenes:        len(project.Scenes),
		StartTime:          scene.StartTime,
		EndTime:            scene.EndTime,
		CustomSystemPrompt: project.PromptSystemMessage,
		PreviousPrompts:    contextWindow(domain.EnsurePromptLen(project.Prompts, len(project.Scenes)), idx, 3),
	})
	if err != nil {
		return fmt.Errorf("generate prompt for scene %d: %w", idx, err)
	}

	if err := p.e.updateProjectPrompts(ctx, project.ID, func(prompts []*domain.PromptEntry) []*domain.PromptEntry {
		prompts = domain.EnsurePromptLen(prompts, len(project.Scenes))
		entry := &domain.PromptEntry{
			Scene:     fmt.Sprintf("Scene %d", idx+1),
			Prompt:    generated,
			Text:      scene.Text,
			StartTime: scene.StartTime,
			EndTime:   scene.EndTime,
			Duration:  scene.EndTime - scene.StartTime,
		}
		if prompts[idx] != nil {
			entry.ImageURL = prompts[idx].ImageURL
		}
		prompts[idx] = entry
		return prompts
	}); err != nil {
		return err
	}

	if err := p.e.jobs.UpdateMetadata(ctx, job.ID, domain.Metadata{
		domain.MetaGeneratedPrompts: []string{generated},
	}); err != nil {
		p.e.log.Warn().Err(err).Str("job_id", job.ID).Msg("metadata update failed")
	}
	if err := p.e.jobs.UpdateProgress(ctx, job.ID, 1); err != nil {
		p.e.log.Warn().Err(err).Str("job_id", job.ID).Msg("progress update failed")
	}
	return nil
}

// singleImageProcessor regenerates the image of one scene from its stored
// prompt.
type singleImageProcessor struct {
	e *Engine
}

func (p *singleImageProcessor) Total(ctx context.Context, project *domain.Project, meta domain.Metadata) (int, error) {
	idx, err := sceneIndexFor(project, meta)
	if err != nil {
		return 0, err
	}
	if idx >= len(project.Prompts) || !project.Prompts[idx].HasPrompt() {
		return 0, fmt.Errorf("%w: scene %d has no usable prompt", domain.ErrInvalidMetadata, idx)
	}
	return 1, nil
}

func (p *singleImageProcessor) Run(ctx context.Context, job *domain.GenerationJob, project *domain.Project) error {
	idx, err := sceneIndexFor(project, job.Metadata)
	if err != nil {
		return err
	}
	if idx >= len(project.Prompts) || !project.Prompts[idx].HasPrompt() {
		return fmt.Errorf("%w: scene %d has no usable prompt", domain.ErrInvalidMetadata, idx)
	}

	url, err := p.e.generateSceneImage(ctx, project, idx, project.Prompts[idx].Prompt)
	if err != nil {
		return fmt.Errorf("generate image for scene %d: %w", idx, err)
	}
	if err := p.e.savePromptImage(ctx, project.ID, idx, url); err != nil {
		return err
	}

	if err := p.e.jobs.UpdateMetadata(ctx, job.ID, domain.Metadata{"imageUrl": url}); err != nil {
		p.e.log.Warn().Err(err).Str("job_id", job.ID).Msg("metadata update failed")
	}
	if err := p.e.jobs.UpdateProgress(ctx, job.ID, 1); err != nil {
		p.e.log.Warn().Err(err).Str("job_id", job.ID).Msg("progress update failed")
	}
	return nil
}

// sceneIndexFor validates the metadata scene index against the project.
func sceneIndexFor(project *domain.Project, meta domain.Metadata) (int, error) {
	scene, err := meta.Scene()
	if err != nil {
		return 0, err
	}
	if scene.SceneIndex >= len(project.Scenes) {
		return 0, fmt.Errorf("%w: %d (project has %d scenes)", domain.ErrInvalidSceneIndex, scene.SceneIndex, len(project.Scenes))
	}
	return scene.SceneIndex, nil
}
