package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"findme-api/domain/models"
	"findme-api/domain/repositories"
)

type AlbumEntryRepositoryImpl struct {
	db *gorm.DB
}

func NewAlbumEntryRepository(db *gorm.DB) repositories.AlbumEntryRepository {
	return &AlbumEntryRepositoryImpl{db: db}
}

func (r *AlbumEntryRepositoryImpl) Create(ctx context.Context, entry *models.AlbumEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *AlbumEntryRepositoryImpl) CreateBatch(ctx context.Context, entries []*models.AlbumEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(entries, 100).Error
}

func (r *AlbumEntryRepositoryImpl) GetBySession(ctx context.Context, sessionID uuid.UUID) ([]models.AlbumEntry, error) {
	var entries []models.AlbumEntry
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("photo_index ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *AlbumEntryRepositoryImpl) CountBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.AlbumEntry{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}
