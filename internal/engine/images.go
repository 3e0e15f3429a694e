package engine

import (
	"context"
	"fmt"

	"github.com/goonidz/purple-sub000/internal/domain"
	"github.com/goonidz/purple-sub000/internal/providers/image"
)

// imagesProcessor generates one image per usable prompt. Each finished image
// is written back to the project immediately, so observers see results land
// one by one rather than at the end of the run.
type imagesProcessor struct {
	e *Engine
}

func (p *imagesProcessor) Total(ctx context.Context, project *domain.Project, meta domain.Metadata) (int, error) {
	return len(targetImageIndexes(project, meta.Images().SkipExisting)), nil
}

func (p *imagesProcessor) Run(ctx context.Context, job *domain.GenerationJob, project *domain.Project) error {
	targets := targetImageIndexes(project, job.Metadata.Images().SkipExisting)
	if len(targets) == 0 {
		return nil
	}

	work := func(ctx context.Context, idx int) error {
		url, err := p.e.generateSceneImage(ctx, project, idx, project.Prompts[idx].Prompt)
		if err != nil {
			return err
		}
		return p.e.savePromptImage(ctx, project.ID, idx, url)
	}

	succeeded, _, err := p.e.runChunks(ctx, job, targets, p.e.cfg.ImageBatchSize, work, nil)
	if err != nil {
		return err
	}
	if succeeded == 0 {
		return fmt.Errorf("all %d image generations failed", len(targets))
	}
	return nil
}

// generateSceneImage runs the full generation cycle for one scene using the
// project's image settings.
func (e *Engine) generateSceneImage(ctx context.Context, project *domain.Project, idx int, scenePrompt string) (string, error) {
	req := image.GenerateRequest{
		Prompt:    scenePrompt,
		Width:     project.ImageWidth,
		Height:    project.ImageHeight,
		Model:     project.ImageModel,
		ImageURLs: project.StyleReferenceURLs,
	}
	key := fmt.Sprintf("projects/%s/images/scene_%03d", project.ID, idx)
	return e.generateAndStoreImage(ctx, req, key)
}

// savePromptImage writes one scene's image URL into the prompts array under
// revision protection.
func (e *Engine) savePromptImage(ctx context.Context, projectID string, idx int, url string) error {
	return e.updateProjectPrompts(ctx, projectID, func(prompts []*domain.PromptEntry) []*domain.PromptEntry {
		if idx >= len(prompts) || prompts[idx] == nil {
			return prompts
		}
		entry := *prompts[idx]
		entry.ImageURL = url
		prompts[idx] = &entry
		return prompts
	})
}

// targetImageIndexes lists the prompt indexes an images run will attempt:
// entries with a usable prompt, minus the ones that already carry an image
// when skipExisting is set.
func targetImageIndexes(project *domain.Project, skipExisting bool) []int {
	targets := make([]int, 0, len(project.Prompts))
	for i, entry := range project.Prompts {
		if !entry.HasPrompt() {
			continue
		}
		if skipExisting && entry.HasImage() {
			continue
		}
		targets = append(targets, i)
	}
	return targets
}
