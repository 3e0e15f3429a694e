package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/goonidz/purple-sub000/internal/domain"
	"github.com/goonidz/purple-sub000/internal/providers/image"
	"github.com/goonidz/purple-sub000/internal/providers/prompt"
)

// memJobs is an in-memory domain.JobRepository mirroring the SQL semantics,
// including the guarded terminal transition.
type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.GenerationJob
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[string]*domain.GenerationJob)}
}

func (m *memJobs) Create(ctx context.Context, job *domain.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *job
	c.Metadata = job.Metadata.Clone()
	m.jobs[job.ID] = &c
	return nil
}

func (m *memJobs) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *job
	c.Metadata = job.Metadata.Clone()
	return &c, nil
}

func (m *memJobs) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg *string, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if status.Terminal() && !job.Status.Active() {
		return domain.ErrNotFound
	}
	if status == domain.JobStatusProcessing && job.Status != domain.JobStatusPending {
		return domain.ErrNotFound
	}
	job.Status = status
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	if completedAt != nil {
		job.CompletedAt = completedAt
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (m *memJobs) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if !job.Status.Active() {
		return domain.ErrNotFound
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (m *memJobs) UpdateMetadata(ctx context.Context, jobID string, patch domain.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Metadata == nil {
		job.Metadata = domain.Metadata{}
	}
	for k, v := range patch {
		job.Metadata[k] = v
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (m *memJobs) ListActive(ctx context.Context, projectID string, jobType domain.JobType) ([]domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GenerationJob
	for _, job := range m.jobs {
		if job.ProjectID != projectID || !job.Status.Active() {
			continue
		}
		if jobType != "" && job.Type != jobType {
			continue
		}
		c := *job
		c.Metadata = job.Metadata.Clone()
		out = append(out, c)
	}
	return out, nil
}

func (m *memJobs) FailStale(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, job := range m.jobs {
		if job.Status.Active() && job.UpdatedAt.Before(cutoff) {
			job.Status = domain.JobStatusFailed
			job.ErrorMessage = "job timed out without progress"
			job.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

// memProjects is an in-memory domain.ProjectRepository with the same
// revision compare-and-swap behaviour as the SQL one. failSaves forces the
// next N prompt saves to lose the race.
type memProjects struct {
	mu        sync.Mutex
	projects  map[string]*domain.Project
	failSaves int
	saveCount int
}

func newMemProjects(projects ...*domain.Project) *memProjects {
	m := &memProjects{projects: make(map[string]*domain.Project)}
	for _, p := range projects {
		m.projects[p.ID] = p
	}
	return m
}

func (m *memProjects) GetByID(ctx context.Context, projectID string) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *p
	c.Prompts = domain.ClonePrompts(p.Prompts)
	c.Scenes = append([]domain.Scene(nil), p.Scenes...)
	return &c, nil
}

func (m *memProjects) SaveTranscript(ctx context.Context, projectID string, transcript *domain.Transcript, audioURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return domain.ErrNotFound
	}
	p.Transcript = transcript
	p.AudioURL = audioURL
	return nil
}

func (m *memProjects) SaveSummary(ctx context.Context, projectID, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return domain.ErrNotFound
	}
	p.Summary = summary
	return nil
}

func (m *memProjects) SavePrompts(ctx context.Context, projectID string, prompts []*domain.PromptEntry, expectedRevision int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.failSaves > 0 {
		m.failSaves--
		return domain.ErrStaleRevision
	}
	if p.Revision != expectedRevision {
		return domain.ErrStaleRevision
	}
	p.Prompts = domain.ClonePrompts(prompts)
	p.Revision++
	m.saveCount++
	return nil
}

// memHistory records thumbnail archive writes.
type memHistory struct {
	mu     sync.Mutex
	thumbs map[string][]domain.GeneratedThumbnail
}

func newMemHistory() *memHistory {
	return &memHistory{thumbs: make(map[string][]domain.GeneratedThumbnail)}
}

func (m *memHistory) Add(ctx context.Context, projectID string, thumbs []domain.GeneratedThumbnail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thumbs[projectID] = append(m.thumbs[projectID], thumbs...)
	return nil
}

// Stub providers, overridable per test.
type stubTranscriber struct {
	fn func(ctx context.Context, audioURL string) (*domain.Transcript, error)
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audioURL string) (*domain.Transcript, error) {
	return s.fn(ctx, audioURL)
}

type stubPrompter struct {
	genFn     func(ctx context.Context, req prompt.SceneRequest) (string, error)
	summaryFn func(ctx context.Context, transcript string) (string, error)
	thumbsFn  func(ctx context.Context, req prompt.ThumbnailPromptRequest) ([]string, error)
}

func (s *stubPrompter) GeneratePrompt(ctx context.Context, req prompt.SceneRequest) (string, error) {
	if s.genFn == nil {
		return fmt.Sprintf("prompt for scene %d", req.SceneIndex), nil
	}
	return s.genFn(ctx, req)
}

func (s *stubPrompter) GenerateSummary(ctx context.Context, transcript string) (string, error) {
	if s.summaryFn == nil {
		return "a summary", nil
	}
	return s.summaryFn(ctx, transcript)
}

func (s *stubPrompter) GenerateThumbnailPrompts(ctx context.Context, req prompt.ThumbnailPromptRequest) ([]string, error) {
	if s.thumbsFn == nil {
		return []string{"thumb a", "thumb b", "thumb c"}, nil
	}
	return s.thumbsFn(ctx, req)
}

type stubPredictions struct {
	submitFn func(ctx context.Context, req image.GenerateRequest) (string, error)
	checkFn  func(ctx context.Context, id string) (*image.Prediction, error)
}

func (s *stubPredictions) Submit(ctx context.Context, req image.GenerateRequest) (string, error) {
	if s.submitFn == nil {
		return "pred-" + req.Prompt, nil
	}
	return s.submitFn(ctx, req)
}

func (s *stubPredictions) Check(ctx context.Context, id string) (*image.Prediction, error) {
	if s.checkFn == nil {
		return &image.Prediction{ID: id, Status: image.StatusSucceeded, Output: []byte(`"https://provider/out.png"`)}, nil
	}
	return s.checkFn(ctx, id)
}

func (s *stubPredictions) Model() string { return "test-model" }

type stubStore struct {
	mu     sync.Mutex
	writes map[string][]byte
}

func newStubStore() *stubStore {
	return &stubStore{writes: make(map[string][]byte)}
}

func (s *stubStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes[key] = data
	return "https://assets.local/" + key, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	return []byte("image-bytes"), "image/png", nil
}

// testEnv bundles a fully wired engine over the in-memory fakes.
type testEnv struct {
	engine      *Engine
	jobs        *memJobs
	projects    *memProjects
	history     *memHistory
	prompter    *stubPrompter
	predictions *stubPredictions
	transcriber *stubTranscriber
	store       *stubStore
}

func newTestEnv(t *testing.T, projects ...*domain.Project) *testEnv {
	t.Helper()
	return newTestEnvCfg(t, Config{
		PollInterval: time.Millisecond,
		PollMaxWait:  time.Second,
	}, projects...)
}

func newTestEnvCfg(t *testing.T, cfg Config, projects ...*domain.Project) *testEnv {
	t.Helper()
	env := &testEnv{
		jobs:     newMemJobs(),
		projects: newMemProjects(projects...),
		history:  newMemHistory(),
		prompter: &stubPrompter{},
		predictions: &stubPredictions{},
		transcriber: &stubTranscriber{fn: func(ctx context.Context, audioURL string) (*domain.Transcript, error) {
			return &domain.Transcript{Segments: []domain.TranscriptSegment{{Text: "hello", End: 1}}}, nil
		}},
		store: newStubStore(),
	}
	eng, err := New(Deps{
		Jobs:        env.jobs,
		Projects:    env.projects,
		History:     env.history,
		Transcriber: env.transcriber,
		Prompts:     env.prompter,
		Predictions: env.predictions,
		Store:       env.store,
		Fetcher:     stubFetcher{},
		Logger:      zerolog.Nop(),
		Config:      cfg,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	env.engine = eng
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Close(ctx)
	})
	return env
}

func sceneProject(id string, sceneCount int) *domain.Project {
	p := &domain.Project{
		ID:          id,
		Name:        "Test Video",
		ImageWidth:  1280,
		ImageHeight: 720,
	}
	for i := 0; i < sceneCount; i++ {
		p.Scenes = append(p.Scenes, domain.Scene{
			Text:      fmt.Sprintf("scene %d text", i),
			StartTime: float64(i * 10),
			EndTime:   float64(i*10 + 10),
		})
	}
	return p
}

// waitTerminal polls until the job leaves its active states.
func waitTerminal(t *testing.T, jobs *memJobs, jobID string) *domain.GenerationJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := jobs.GetByID(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetByID returned error: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", jobID)
	return nil
}
