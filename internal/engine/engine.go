// Package engine runs generation jobs in background goroutines: it dispatches
// them, drives the batch processors, polls the prediction API and chains the
// automatic pipeline steps.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goonidz/purple-sub000/internal/domain"
	"github.com/goonidz/purple-sub000/internal/providers/image"
	"github.com/goonidz/purple-sub000/internal/providers/prompt"
)

// Transcriber converts hosted audio into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (*domain.Transcript, error)
}

// PromptGenerator produces scene prompts, summaries and thumbnail ideas.
type PromptGenerator interface {
	GeneratePrompt(ctx context.Context, req prompt.SceneRequest) (string, error)
	GenerateSummary(ctx context.Context, transcript string) (string, error)
	GenerateThumbnailPrompts(ctx context.Context, req prompt.ThumbnailPromptRequest) ([]string, error)
}

// PredictionAPI submits image generations and reports their progress.
type PredictionAPI interface {
	Submit(ctx context.Context, req image.GenerateRequest) (string, error)
	Check(ctx context.Context, predictionID string) (*image.Prediction, error)
	Model() string
}

// AssetStore persists generated bytes and returns their public URL.
type AssetStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// AssetFetcher downloads provider output so it can be re-hosted.
type AssetFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Config carries the engine tunables.
type Config struct {
	PollInterval      time.Duration
	PollMaxWait       time.Duration
	PromptBatchSize   int
	ImageBatchSize    int
	StaleJobThreshold time.Duration
	JanitorInterval   time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.PollMaxWait <= 0 {
		c.PollMaxWait = 10 * time.Minute
	}
	if c.PromptBatchSize <= 0 {
		c.PromptBatchSize = 50
	}
	if c.ImageBatchSize <= 0 {
		c.ImageBatchSize = 100
	}
	if c.StaleJobThreshold <= 0 {
		c.StaleJobThreshold = 5 * time.Minute
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = time.Minute
	}
}

// Deps bundles everything the engine needs.
type Deps struct {
	Jobs        domain.JobRepository
	Projects    domain.ProjectRepository
	History     domain.ThumbnailHistoryRepository
	Transcriber Transcriber
	Prompts     PromptGenerator
	Predictions PredictionAPI
	Store       AssetStore
	Fetcher     AssetFetcher
	Logger      zerolog.Logger
	Config      Config
}

// processor implements one job type. Total is evaluated at dispatch time so
// the recorded total matches what the run will attempt; Run performs the work
// against a freshly loaded project.
type processor interface {
	Total(ctx context.Context, project *domain.Project, meta domain.Metadata) (int, error)
	Run(ctx context.Context, job *domain.GenerationJob, project *domain.Project) error
}

// Engine owns the job lifecycle. Jobs execute on goroutines attached to the
// engine's root context, so closing the engine cancels everything in flight.
type Engine struct {
	cfg      Config
	jobs     domain.JobRepository
	projects domain.ProjectRepository
	history  domain.ThumbnailHistoryRepository

	transcriber Transcriber
	prompts     PromptGenerator
	predictions PredictionAPI
	store       AssetStore
	fetcher     AssetFetcher

	log   zerolog.Logger
	procs map[domain.JobType]processor

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires an Engine from its dependencies.
func New(deps Deps) (*Engine, error) {
	if deps.Jobs == nil || deps.Projects == nil {
		return nil, errors.New("engine: job and project repositories are required")
	}
	deps.Config.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:         deps.Config,
		jobs:        deps.Jobs,
		projects:    deps.Projects,
		history:     deps.History,
		transcriber: deps.Transcriber,
		prompts:     deps.Prompts,
		predictions: deps.Predictions,
		store:       deps.Store,
		fetcher:     deps.Fetcher,
		log:         deps.Logger,
		rootCtx:     ctx,
		cancel:      cancel,
	}
	e.procs = map[domain.JobType]processor{
		domain.JobTypeTranscription: &transcriptionProcessor{e: e},
		domain.JobTypePrompts:       &promptsProcessor{e: e},
		domain.JobTypeImages:        &imagesProcessor{e: e},
		domain.JobTypeThumbnails:    &thumbnailsProcessor{e: e},
		domain.JobTypeTestImages:    &testImagesProcessor{e: e},
		domain.JobTypeSinglePrompt:  &singlePromptProcessor{e: e},
		domain.JobTypeSingleImage:   &singleImageProcessor{e: e},
	}
	return e, nil
}

// Start launches the background janitor.
func (e *Engine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runJanitor(e.rootCtx)
	}()
}

// Close cancels all in-flight jobs and waits for their goroutines, bounded by
// ctx.
func (e *Engine) Close(ctx context.Context) error {
	e.cancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine: shutdown timed out: %w", ctx.Err())
	}
}

// updateProjectPrompts applies mutate to a freshly loaded prompts array and
// saves it under the revision that was read. On a lost race it re-fetches and
// retries a few times so concurrent per-scene writers interleave instead of
// clobbering each other.
func (e *Engine) updateProjectPrompts(ctx context.Context, projectID string, mutate func(prompts []*domain.PromptEntry) []*domain.PromptEntry) error {
	const maxAttempts = 4
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		project, err := e.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		prompts := mutate(domain.ClonePrompts(project.Prompts))
		err = e.projects.SavePrompts(ctx, projectID, prompts, project.Revision)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrStaleRevision) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
