package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/goonidz/purple-sub000/internal/domain"
	"github.com/goonidz/purple-sub000/internal/providers/prompt"
)

// testImagePreviewScenes bounds how many scenes a test run covers.
const testImagePreviewScenes = 2

// testImagesProcessor produces a quick preview: fresh prompts and images for
// the first couple of scenes, so style settings can be judged before
// committing to a full run. Each scene counts two work items, prompt and
// image.
type testImagesProcessor struct {
	e *Engine
}

func (p *testImagesProcessor) Total(ctx context.Context, project *domain.Project, meta domain.Metadata) (int, error) {
	n := previewSceneCount(project)
	if n == 0 {
		return 0, domain.ErrNoScenes
	}
	return n * 2, nil
}

func (p *testImagesProcessor) Run(ctx context.Context, job *domain.GenerationJob, project *domain.Project) error {
	n := previewSceneCount(project)
	if n == 0 {
		return domain.ErrNoScenes
	}

	// Phase 1: prompts for the preview scenes, always regenerated.
	generated := make([]string, n)
	var mu sync.Mutex
	examplePrompts := strings.Join(project.ExamplePrompts, "\n")

	g, gctx := errgroup.WithContext(ctx)
	for idx := 0; idx < n; idx++ {
		idx := idx
		g.Go(func() error {
			scene := project.Scenes[idx]
			out, err := p.e.prompts.GeneratePrompt(gctx, prompt.SceneRequest{
				Scene:              scene.Text,
				Summary:            project.Summary,
				ExamplePrompts:     examplePrompts,
				SceneIndex:         idx,
				TotalScenes:        len(project.Scenes),
				StartTime:          scene.StartTime,
				EndTime:            scene.EndTime,
				CustomSystemPrompt: project.PromptSystemMessage,
			})
			if err != nil {
				p.e.log.Warn().Err(err).Int("scene", idx).Str("job_id", job.ID).Msg("preview prompt failed")
				return nil
			}
			mu.Lock()
			generated[idx] = out
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := p.e.updateProjectPrompts(ctx, project.ID, func(prompts []*domain.PromptEntry) []*domain.PromptEntry {
		prompts = domain.EnsurePromptLen(prompts, len(project.Scenes))
		for idx := 0; idx < n; idx++ {
			if generated[idx] == "" {
				continue
			}
			scene := project.Scenes[idx]
			entry := &domain.PromptEntry{
				Scene:     fmt.Sprintf("Scene %d", idx+1),
				Prompt:    generated[idx],
				Text:      scene.Text,
				StartTime: scene.StartTime,
				EndTime:   scene.EndTime,
				Duration:  scene.EndTime - scene.StartTime,
			}
			prompts[idx] = entry
		}
		return prompts
	}); err != nil {
		return err
	}

	progress := 0
	for idx := 0; idx < n; idx++ {
		if generated[idx] != "" {
			progress++
		}
	}
	if progress == 0 {
		return fmt.Errorf("all %d preview prompts failed", n)
	}
	if err := p.e.jobs.UpdateProgress(ctx, job.ID, progress); err != nil {
		p.e.log.Warn().Err(err).Str("job_id", job.ID).Msg("progress update failed")
	}

	if err := p.e.checkCancelled(ctx, job.ID); err != nil {
		return err
	}

	// Phase 2: one image per successfully prompted scene.
	var imgMu sync.Mutex
	imageCount := 0
	g2, gctx2 := errgroup.WithContext(ctx)
	for idx := 0; idx < n; idx++ {
		if generated[idx] == "" {
			continue
		}
		idx := idx
		g2.Go(func() error {
			url, err := p.e.generateSceneImage(gctx2, project, idx, generated[idx])
			if err != nil {
				p.e.log.Warn().Err(err).Int("scene", idx).Str("job_id", job.ID).Msg("preview image failed")
				return nil
			}
			if err := p.e.savePromptImage(gctx2, project.ID, idx, url); err != nil {
				p.e.log.Warn().Err(err).Int("scene", idx).Str("job_id", job.ID).Msg("preview image save failed")
				return nil
			}
			imgMu.Lock()
			imageCount++
			imgMu.Unlock()
			return nil
		})
	}
	if err := g2.Wait(); err != nil {
		return err
	}

	if err := p.e.jobs.UpdateProgress(ctx, job.ID, progress+imageCount); err != nil {
		p.e.log.Warn().Err(err).Str("job_id", job.ID).Msg("progress update failed")
	}
	return nil
}

func previewSceneCount(project *domain.Project) int {
	if len(project.Scenes) < testImagePreviewScenes {
		return len(project.Scenes)
	}
	return testImagePreviewScenes
}
