package repositories

import (
	"context"

	"github.com/google/uuid"

	"findme-api/domain/models"
)

type MatchRepository interface {
	CreateBatch(ctx context.Context, matches []*models.Match) error

	// GetBySession returns matches ordered by rank
	GetBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Match, error)
}
