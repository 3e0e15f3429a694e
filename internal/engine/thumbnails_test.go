package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goonidz/purple-sub000/internal/domain"
	"github.com/goonidz/purple-sub000/internal/providers/image"
	"github.com/goonidz/purple-sub000/internal/providers/prompt"
)

func TestThumbnailsJobProducesThreeVariants(t *testing.T) {
	project := sceneProject("p1", 2)
	project.Prompts = []*domain.PromptEntry{
		{Prompt: "a", Text: "First part."},
		{Prompt: "b", Text: "Second part."},
	}
	env := newTestEnv(t, project)

	var captured prompt.ThumbnailPromptRequest
	env.prompter.thumbsFn = func(ctx context.Context, req prompt.ThumbnailPromptRequest) ([]string, error) {
		captured = req
		return []string{"variant 1", "variant 2", "variant 3"}, nil
	}

	job, err := env.engine.Submit(context.Background(), SubmitRequest{
		ProjectID: "p1",
		Type:      domain.JobTypeThumbnails,
		Metadata:  domain.Metadata{domain.MetaVideoTitle: "Great Video"},
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if job.Total != 3 {
		t.Fatalf("total = %d, want 3", job.Total)
	}

	done := waitTerminal(t, env.jobs, job.ID)
	if done.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q (%s)", done.Status, done.ErrorMessage)
	}
	if done.Progress != 3 {
		t.Fatalf("progress = %d, want 3", done.Progress)
	}
	if captured.VideoTitle != "Great Video" {
		t.Fatalf("video title = %q", captured.VideoTitle)
	}
	if !strings.Contains(captured.VideoScript, "First part.") {
		t.Fatalf("script = %q, want scene texts", captured.VideoScript)
	}

	prompts := done.Metadata.StringSlice(domain.MetaGeneratedPrompts)
	if len(prompts) != 3 {
		t.Fatalf("generated prompts in metadata = %#v", prompts)
	}
	thumbs, ok := done.Metadata[domain.MetaGeneratedThumbnails].([]domain.GeneratedThumbnail)
	if !ok || len(thumbs) != 3 {
		t.Fatalf("generated thumbnails in metadata = %#v", done.Metadata[domain.MetaGeneratedThumbnails])
	}

	env.history.mu.Lock()
	archived := len(env.history.thumbs["p1"])
	env.history.mu.Unlock()
	if archived != 3 {
		t.Fatalf("archived thumbnails = %d, want 3", archived)
	}
}

func TestThumbnailsProgressNeverRegresses(t *testing.T) {
	env := newTestEnv(t, sceneProject("p1", 1))
	env.predictions.submitFn = func(ctx context.Context, req image.GenerateRequest) (string, error) {
		if req.Prompt == "thumb a" {
			return "pred-slow", nil
		}
		return "pred-" + req.Prompt, nil
	}
	started := time.Now()
	env.predictions.checkFn = func(ctx context.Context, id string) (*image.Prediction, error) {
		// One straggler variant, so the writes from the fast variants land
		// well before its own.
		if id == "pred-slow" && time.Since(started) < 30*time.Millisecond {
			return &image.Prediction{ID: id, Status: image.StatusRunning}, nil
		}
		return &image.Prediction{ID: id, Status: image.StatusSucceeded, Output: []byte(`"https://provider/out.png"`)}, nil
	}

	job, err := env.engine.Submit(context.Background(), SubmitRequest{
		ProjectID: "p1",
		Type:      domain.JobTypeThumbnails,
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	last := 0
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := env.jobs.GetByID(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("GetByID returned error: %v", err)
		}
		if got.Progress < last {
			t.Fatalf("progress regressed from %d to %d", last, got.Progress)
		}
		last = got.Progress
		if got.Status.Terminal() {
			if got.Status != domain.JobStatusCompleted {
				t.Fatalf("status = %q (%s)", got.Status, got.ErrorMessage)
			}
			if got.Progress != 3 {
				t.Fatalf("final progress = %d, want 3", got.Progress)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("job did not finish")
}

func TestThumbnailsPartialFailureStillCompletes(t *testing.T) {
	env := newTestEnv(t, sceneProject("p1", 1))
	env.predictions.submitFn = func(ctx context.Context, req image.GenerateRequest) (string, error) {
		if req.Prompt == "thumb b" {
			return "", errors.New("rejected")
		}
		return "pred-ok", nil
	}

	job, err := env.engine.Submit(context.Background(), SubmitRequest{
		ProjectID: "p1",
		Type:      domain.JobTypeThumbnails,
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	done := waitTerminal(t, env.jobs, job.ID)
	if done.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q, one failed variant must not fail the job", done.Status)
	}
	if done.Progress != 2 {
		t.Fatalf("progress = %d, want 2", done.Progress)
	}
}

func TestThumbnailsAllFailedFailsJob(t *testing.T) {
	env := newTestEnv(t, sceneProject("p1", 1))
	env.predictions.submitFn = func(ctx context.Context, req image.GenerateRequest) (string, error) {
		return "", errors.New("provider down")
	}
	job, err := env.engine.Submit(context.Background(), SubmitRequest{
		ProjectID: "p1",
		Type:      domain.JobTypeThumbnails,
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	done := waitTerminal(t, env.jobs, job.ID)
	if done.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed", done.Status)
	}
	env.history.mu.Lock()
	archived := len(env.history.thumbs["p1"])
	env.history.mu.Unlock()
	if archived != 0 {
		t.Fatalf("archived = %d, want none", archived)
	}
}

func TestResolveThumbnailInputsPrefersMetadata(t *testing.T) {
	t.Parallel()
	project := sceneProject("p1", 1)
	project.ThumbnailPreset = &domain.ThumbnailPreset{
		ExampleURLs:     []string{"https://cdn/preset.png"},
		CharacterRefURL: "https://cdn/char.png",
		CustomPrompt:    "preset style",
	}
	got := resolveThumbnailInputs(domain.Metadata{
		domain.MetaVideoTitle:   "Override",
		domain.MetaCustomPrompt: "metadata style",
	}, project)
	if got.VideoTitle != "Override" {
		t.Fatalf("title = %q", got.VideoTitle)
	}
	if got.CustomPrompt != "metadata style" {
		t.Fatalf("custom prompt = %q", got.CustomPrompt)
	}
	if len(got.ExampleURLs) != 1 || got.ExampleURLs[0] != "https://cdn/preset.png" {
		t.Fatalf("example urls = %#v", got.ExampleURLs)
	}
	if got.CharacterRefURL != "https://cdn/char.png" {
		t.Fatalf("character ref = %q", got.CharacterRefURL)
	}
}

func TestTestImagesPreviewsFirstScenes(t *testing.T) {
	env := newTestEnv(t, sceneProject("p1", 5))
	job, err := env.engine.Submit(context.Background(), SubmitRequest{
		ProjectID: "p1",
		Type:      domain.JobTypeTestImages,
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if job.Total != 4 {
		t.Fatalf("total = %d, want 4 (2 prompts + 2 images)", job.Total)
	}
	done := waitTerminal(t, env.jobs, job.ID)
	if done.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q (%s)", done.Status, done.ErrorMessage)
	}
	if done.Progress != 4 {
		t.Fatalf("progress = %d, want 4", done.Progress)
	}

	got, err := env.projects.GetByID(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if !got.Prompts[i].HasPrompt() || !got.Prompts[i].HasImage() {
			t.Fatalf("scene %d = %+v, want prompt and image", i, got.Prompts[i])
		}
	}
	for i := 2; i < 5; i++ {
		if i < len(got.Prompts) && got.Prompts[i] != nil {
			t.Fatalf("scene %d was touched by the preview", i)
		}
	}
}

func TestTestImagesSingleSceneProject(t *testing.T) {
	env := newTestEnv(t, sceneProject("p1", 1))
	job, err := env.engine.Submit(context.Background(), SubmitRequest{
		ProjectID: "p1",
		Type:      domain.JobTypeTestImages,
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if job.Total != 2 {
		t.Fatalf("total = %d, want 2", job.Total)
	}
	done := waitTerminal(t, env.jobs, job.ID)
	if done.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q (%s)", done.Status, done.ErrorMessage)
	}
}
