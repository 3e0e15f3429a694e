package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goonidz/purple-sub000/internal/domain"
	"github.com/goonidz/purple-sub000/internal/providers/prompt"
)

// promptsProcessor writes one image prompt per scene. Scenes that already
// hold a usable prompt are skipped unless regeneration was requested, and a
// failed generation leaves the error sentinel in the slot so the run keeps
// going.
type promptsProcessor struct {
	e *Engine
}

func (p *promptsProcessor) Total(ctx context.Context, project *domain.Project, meta domain.Metadata) (int, error) {
	if len(project.Scenes) == 0 {
		return 0, domain.ErrNoScenes
	}
	return len(targetPromptIndexes(project, meta.Prompts().Regenerate)), nil
}

func (p *promptsProcessor) Run(ctx context.Context, job *domain.GenerationJob, project *domain.Project) error {
	targets := targetPromptIndexes(project, job.Metadata.Prompts().Regenerate)
	if len(targets) == 0 {
		return nil
	}

	summary, err := p.ensureSummary(ctx, project)
	if err != nil {
		// A missing summary degrades prompt quality but does not block the
		// run.
		p.e.log.Warn().Err(err).Str("project_id", project.ID).Msg("summary generation failed")
	}

	var mu sync.Mutex
	working := domain.EnsurePromptLen(domain.ClonePrompts(project.Prompts), len(project.Scenes))
	scenes := project.Scenes
	examplePrompts := strings.Join(project.ExamplePrompts, "\n")

	work := func(ctx context.Context, idx int) error {
		scene := scenes[idx]

		mu.Lock()
		previous := contextWindow(working, idx, 3)
		mu.Unlock()

		generated, genErr := p.e.prompts.GeneratePrompt(ctx, prompt.SceneRequest{
			Scene:              scene.Text,
			Summary:            summary,
			ExamplePrompts:     examplePrompts,
			SceneIndex:         idx,
			TotalScenes:        len(scenes),
			StartTime:          scene.StartTime,
			EndTime:            scene.EndTime,
			CustomSystemPrompt: project.PromptSystemMessage,
			PreviousPrompts:    previous,
		})

		entry := &domain.PromptEntry{
			Scene:     fmt.Sprintf("Scene %d", idx+1),
			Prompt:    generated,
			Text:      scene.Text,
			StartTime: scene.StartTime,
			EndTime:   scene.EndTime,
			Duration:  scene.EndTime - scene.StartTime,
		}
		if genErr != nil {
			entry.Prompt = domain.PromptErrorSentinel
		}

		mu.Lock()
		if working[idx] != nil {
			entry.ImageURL = working[idx].ImageURL
		}
		working[idx] = entry
		mu.Unlock()
		return genErr
	}

	flush := func(ctx context.Context, report chunkReport) error {
		done := append(append([]int(nil), report.Succeeded...), report.Failed...)
		return p.e.updateProjectPrompts(ctx, project.ID, func(prompts []*domain.PromptEntry) []*domain.PromptEntry {
			prompts = domain.EnsurePromptLen(prompts, len(scenes))
			mu.Lock()
			defer mu.Unlock()
			for _, idx := range done {
				entry := *working[idx]
				// An image written concurrently for this scene wins over the
				// one the entry was cloned with.
				if prompts[idx] != nil && prompts[idx].ImageURL != "" {
					entry.ImageURL = prompts[idx].ImageURL
				}
				prompts[idx] = &entry
			}
			return prompts
		})
	}

	succeeded, _, err := p.e.runChunks(ctx, job, targets, p.e.cfg.PromptBatchSize, work, flush)
	if err != nil {
		return err
	}
	if succeeded == 0 {
		return fmt.Errorf("all %d prompt generations failed", len(targets))
	}
	return nil
}

// ensureSummary returns the project summary, generating and persisting it
// first when absent.
func (p *promptsProcessor) ensureSummary(ctx context.Context, project *domain.Project) (string, error) {
	if project.Summary != "" {
		return project.Summary, nil
	}
	source := project.Transcript.FullText()
	if source == "" {
		var parts []string
		for _, scene := range project.Scenes {
			parts = append(parts, scene.Text)
		}
		source = strings.Join(parts, " ")
	}
	if strings.TrimSpace(source) == "" {
		return "", nil
	}
	summary, err := p.e.prompts.GenerateSummary(ctx, source)
	if err != nil {
		return "", err
	}
	if err := p.e.projects.SaveSummary(ctx, project.ID, summary); err != nil {
		return summary, err
	}
	project.Summary = summary
	return summary, nil
}

// targetPromptIndexes lists the scene indexes a prompts run will attempt:
// every scene when regenerating, otherwise only the ones without a usable
// prompt (empty slots and error sentinels alike).
func targetPromptIndexes(project *domain.Project, regenerate bool) []int {
	targets := make([]int, 0, len(project.Scenes))
	for i := range project.Scenes {
		if regenerate {
			targets = append(targets, i)
			continue
		}
		if i >= len(project.Prompts) || !project.Prompts[i].HasPrompt() {
			targets = append(targets, i)
		}
	}
	return targets
}

// contextWindow collects up to limit usable prompts preceding idx, nearest
// last, to keep visual continuity across scenes. Sentinel and empty slots are
// skipped.
func contextWindow(prompts []*domain.PromptEntry, idx, limit int) []string {
	var window []string
	for i := idx - 1; i >= 0 && len(window) < limit; i-- {
		if prompts[i].HasPrompt() {
			window = append(window, prompts[i].Prompt)
		}
	}
	// Reverse into chronological order.
	for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
		window[i], window[j] = window[j], window[i]
	}
	return window
}
