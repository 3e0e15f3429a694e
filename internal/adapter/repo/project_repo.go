package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goonidz/purple-sub000/internal/domain"
)

// ProjectRepositoryPG implements domain.ProjectRepository.
type ProjectRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewProjectRepository creates a project repository backed by PostgreSQL.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepositoryPG {
	return &ProjectRepositoryPG{pool: pool}
}

// GetByID fetches a project with its jsonb payloads decoded.
func (r *ProjectRepositoryPG) GetByID(ctx context.Context, projectID string) (*domain.Project, error) {
	query := `
SELECT id, name, audio_url, transcript, scenes, prompts, summary, example_prompts,
       prompt_system_message, image_width, image_height, image_model,
       style_reference_urls, thumbnail_preset, revision, created_at, updated_at
FROM projects
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, projectID)

	var (
		p              domain.Project
		transcriptJSON []byte
		scenesJSON     []byte
		promptsJSON    []byte
		examplesJSON   []byte
		styleRefsJSON  []byte
		presetJSON     []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.AudioURL,
		&transcriptJSON,
		&scenesJSON,
		&promptsJSON,
		&p.Summary,
		&examplesJSON,
		&p.PromptSystemMessage,
		&p.ImageWidth,
		&p.ImageHeight,
		&p.ImageModel,
		&styleRefsJSON,
		&presetJSON,
		&p.Revision,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if err := decodeJSON(transcriptJSON, &p.Transcript); err != nil {
		return nil, fmt.Errorf("repo: decode transcript: %w", err)
	}
	if err := decodeJSON(scenesJSON, &p.Scenes); err != nil {
		return nil, fmt.Errorf("repo: decode scenes: %w", err)
	}
	if err := decodeJSON(promptsJSON, &p.Prompts); err != nil {
		return nil, fmt.Errorf("repo: decode prompts: %w", err)
	}
	if err := decodeJSON(examplesJSON, &p.ExamplePrompts); err != nil {
		return nil, fmt.Errorf("repo: decode example prompts: %w", err)
	}
	if err := decodeJSON(styleRefsJSON, &p.StyleReferenceURLs); err != nil {
		return nil, fmt.Errorf("repo: decode style references: %w", err)
	}
	if err := decodeJSON(presetJSON, &p.ThumbnailPreset); err != nil {
		return nil, fmt.Errorf("repo: decode thumbnail preset: %w", err)
	}
	return &p, nil
}

// SaveTranscript stores the transcription result and the audio url it came
// from.
func (r *ProjectRepositoryPG) SaveTranscript(ctx context.Context, projectID string, transcript *domain.Transcript, audioURL string) error {
	payload, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("repo: encode transcript: %w", err)
	}
	query := `
UPDATE projects
SET transcript = $2,
    audio_url = $3,
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, projectID, payload, audioURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveSummary stores the generated video summary.
func (r *ProjectRepositoryPG) SaveSummary(ctx context.Context, projectID, summary string) error {
	query := `
UPDATE projects
SET summary = $2,
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, projectID, summary)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SavePrompts replaces the prompts array and bumps the revision, but only if
// the stored revision still equals expectedRevision. A mismatch means another
// writer landed first; the caller re-fetches and retries.
func (r *ProjectRepositoryPG) SavePrompts(ctx context.Context, projectID string, prompts []*domain.PromptEntry, expectedRevision int64) error {
	payload, err := json.Marshal(prompts)
	if err != nil {
		return fmt.Errorf("repo: encode prompts: %w", err)
	}
	query := `
UPDATE projects
SET prompts = $2,
    revision = revision + 1,
    updated_at = NOW()
WHERE id = $1 AND revision = $3;
`
	tag, err := r.pool.Exec(ctx, query, projectID, payload, expectedRevision)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing project from a lost race.
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrStaleRevision
	}
	return nil
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
