package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goonidz/purple-sub000/internal/domain"
)

// ThumbnailHistoryRepositoryPG implements domain.ThumbnailHistoryRepository.
type ThumbnailHistoryRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewThumbnailHistoryRepository creates a thumbnail history repository backed
// by PostgreSQL.
func NewThumbnailHistoryRepository(pool *pgxpool.Pool) *ThumbnailHistoryRepositoryPG {
	return &ThumbnailHistoryRepositoryPG{pool: pool}
}

// Add archives a batch of generated thumbnails in one round trip.
func (r *ThumbnailHistoryRepositoryPG) Add(ctx context.Context, projectID string, thumbs []domain.GeneratedThumbnail) error {
	if len(thumbs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	query := `
INSERT INTO thumbnail_history (project_id, url, prompt, position)
VALUES ($1, $2, $3, $4);
`
	for _, t := range thumbs {
		batch.Queue(query, projectID, t.URL, t.Prompt, t.Index)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}
