package repositories

import (
	"context"

	"github.com/google/uuid"

	"findme-api/domain/models"
)

type AlbumEntryRepository interface {
	// Create inserts one entry; entries are write-once per (session, index)
	Create(ctx context.Context, entry *models.AlbumEntry) error
	CreateBatch(ctx context.Context, entries []*models.AlbumEntry) error

	// GetBySession returns entries ordered by photo index
	GetBySession(ctx context.Context, sessionID uuid.UUID) ([]models.AlbumEntry, error)
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int64, error)
}
