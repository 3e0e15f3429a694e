package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds the DDL applied at startup. Statements are idempotent so
// repeated boots are safe.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id                    TEXT PRIMARY KEY,
    name                  TEXT NOT NULL DEFAULT '',
    audio_url             TEXT NOT NULL DEFAULT '',
    transcript            JSONB,
    scenes                JSONB NOT NULL DEFAULT '[]',
    prompts               JSONB NOT NULL DEFAULT '[]',
    summary               TEXT NOT NULL DEFAULT '',
    example_prompts       JSONB NOT NULL DEFAULT '[]',
    prompt_system_message TEXT NOT NULL DEFAULT '',
    image_width           INT NOT NULL DEFAULT 1280,
    image_height          INT NOT NULL DEFAULT 720,
    image_model           TEXT NOT NULL DEFAULT '',
    style_reference_urls  JSONB NOT NULL DEFAULT '[]',
    thumbnail_preset      JSONB,
    revision              BIGINT NOT NULL DEFAULT 0,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS generation_jobs (
    id            TEXT PRIMARY KEY,
    project_id    TEXT NOT NULL,
    user_id       TEXT NOT NULL DEFAULT '',
    type          TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'pending',
    progress      INT NOT NULL DEFAULT 0,
    total         INT NOT NULL DEFAULT 0,
    metadata      JSONB NOT NULL DEFAULT '{}',
    error_message TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_generation_jobs_active
    ON generation_jobs (project_id, type)
    WHERE status IN ('pending', 'processing');

-- Backstop for concurrent submits of the same type: the dispatcher's conflict
-- check is check-then-insert, so the database closes the remaining window.
-- Single-scene types may run per scene and are excluded.
CREATE UNIQUE INDEX IF NOT EXISTS uniq_generation_jobs_one_active
    ON generation_jobs (project_id, type)
    WHERE status IN ('pending', 'processing')
      AND type NOT IN ('single_prompt', 'single_image');

CREATE INDEX IF NOT EXISTS idx_generation_jobs_updated
    ON generation_jobs (updated_at)
    WHERE status IN ('pending', 'processing');

CREATE TABLE IF NOT EXISTS thumbnail_history (
    id         BIGSERIAL PRIMARY KEY,
    project_id TEXT NOT NULL,
    url        TEXT NOT NULL,
    prompt     TEXT NOT NULL DEFAULT '',
    position   INT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_thumbnail_history_project
    ON thumbnail_history (project_id, created_at DESC);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("repo: apply schema: %w", err)
	}
	return nil
}
