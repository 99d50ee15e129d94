package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"findme-api/domain/models"
	"findme-api/domain/repositories"
)

type MatchRepositoryImpl struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) repositories.MatchRepository {
	return &MatchRepositoryImpl{db: db}
}

func (r *MatchRepositoryImpl) CreateBatch(ctx context.Context, matches []*models.Match) error {
	if len(matches) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(matches, 100).Error
}

func (r *MatchRepositoryImpl) GetBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Match, error) {
	var matches []models.Match
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("rank ASC, album_photo_index ASC").
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	return matches, nil
}
