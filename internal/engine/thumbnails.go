package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/goonidz/purple-sub000/internal/domain"
	"github.com/goonidz/purple-sub000/internal/providers/image"
	"github.com/goonidz/purple-sub000/internal/providers/prompt"
)

// thumbnailVariants is how many alternatives a thumbnails run produces.
const thumbnailVariants = 3

// thumbnailsProcessor turns the video title and script into three candidate
// thumbnails. Creative prompts land in job metadata as soon as they exist and
// every finished thumbnail is mirrored there immediately, so the variants can
// be shown while the rest are still rendering.
type thumbnailsProcessor struct {
	e *Engine
}

func (p *thumbnailsProcessor) Total(ctx context.Context, project *domain.Project, meta domain.Metadata) (int, error) {
	return thumbnailVariants, nil
}

func (p *thumbnailsProcessor) Run(ctx context.Context, job *domain.GenerationJob, project *domain.Project) error {
	tm := resolveThumbnailInputs(job.Metadata, project)

	prompts, err := p.e.prompts.GenerateThumbnailPrompts(ctx, prompt.ThumbnailPromptRequest{
		VideoTitle:   tm.VideoTitle,
		VideoScript:  tm.VideoScript,
		CustomPrompt: tm.CustomPrompt,
	})
	if err != nil {
		return fmt.Errorf("thumbnail prompts: %w", err)
	}
	if err := p.e.jobs.UpdateMetadata(ctx, job.ID, domain.Metadata{
		domain.MetaGeneratedPrompts: prompts,
	}); err != nil {
		p.e.log.Warn().Err(err).Str("job_id", job.ID).Msg("metadata update failed")
	}

	if err := p.e.checkCancelled(ctx, job.ID); err != nil {
		return err
	}

	model := tm.ImageModel
	if model == "" {
		model = p.e.predictions.Model()
	}
	refs := tm.ExampleURLs
	if tm.CharacterRefURL != "" {
		refs = append(append([]string(nil), refs...), tm.CharacterRefURL)
	}

	var (
		mu     sync.Mutex
		thumbs []domain.GeneratedThumbnail
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, thumbPrompt := range prompts {
		i, thumbPrompt := i, thumbPrompt
		g.Go(func() error {
			req := image.GenerateRequest{
				Prompt:    thumbPrompt,
				Width:     1280,
				Height:    720,
				Model:     model,
				ImageURLs: refs,
			}
			key := fmt.Sprintf("projects/%s/thumbnails/%s_%d", project.ID, job.ID, i)
			url, err := p.e.generateAndStoreImage(gctx, req, key)
			if err != nil {
				p.e.log.Warn().Err(err).Int("variant", i).Str("job_id", job.ID).Msg("thumbnail failed")
				return nil
			}

			// The mirror and progress writes stay under mu so two variants
			// finishing together cannot land out of order and shrink what
			// an earlier write already recorded.
			mu.Lock()
			thumbs = append(thumbs, domain.GeneratedThumbnail{URL: url, Prompt: thumbPrompt, Index: i})
			sort.Slice(thumbs, func(a, b int) bool { return thumbs[a].Index < thumbs[b].Index })
			snapshot := append([]domain.GeneratedThumbnail(nil), thumbs...)
			done := len(thumbs)
			if err := p.e.jobs.UpdateMetadata(gctx, job.ID, domain.Metadata{
				domain.MetaGeneratedThumbnails: snapshot,
			}); err != nil {
				p.e.log.Warn().Err(err).Str("job_id", job.ID).Msg("metadata update failed")
			}
			if err := p.e.jobs.UpdateProgress(gctx, job.ID, done); err != nil {
				p.e.log.Warn().Err(err).Str("job_id", job.ID).Msg("progress update failed")
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(thumbs) == 0 {
		return fmt.Errorf("all %d thumbnail generations failed", thumbnailVariants)
	}
	if p.e.history != nil {
		if err := p.e.history.Add(ctx, project.ID, thumbs); err != nil {
			p.e.log.Warn().Err(err).Str("project_id", project.ID).Msg("thumbnail history write failed")
		}
	}
	return nil
}

// resolveThumbnailInputs merges job metadata with the project's thumbnail
// preset, metadata winning field by field.
func resolveThumbnailInputs(meta domain.Metadata, project *domain.Project) domain.ThumbnailsMeta {
	tm := meta.Thumbnails()
	if tm.VideoTitle == "" {
		tm.VideoTitle = project.Name
	}
	if tm.VideoScript == "" {
		tm.VideoScript = project.VideoScript()
	}
	if preset := project.ThumbnailPreset; preset != nil {
		if len(tm.ExampleURLs) == 0 {
			tm.ExampleURLs = preset.ExampleURLs
		}
		if tm.CharacterRefURL == "" {
			tm.CharacterRefURL = preset.CharacterRefURL
		}
		if tm.CustomPrompt == "" {
			tm.CustomPrompt = preset.CustomPrompt
		}
	}
	return tm
}
