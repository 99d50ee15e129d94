package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"findme-api/domain/models"
	"findme-api/domain/repositories"
)

type SessionRepositoryImpl struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) repositories.SessionRepository {
	return &SessionRepositoryImpl{db: db}
}

func (r *SessionRepositoryImpl) Create(ctx context.Context, session *models.SearchSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *SessionRepositoryImpl) Update(ctx context.Context, session *models.SearchSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

func (r *SessionRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.SearchSession, error) {
	var session models.SearchSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepositoryImpl) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.db.WithContext(ctx).Model(&models.SearchSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.SessionStatusFailed,
			"cache_status": gorm.Expr("CASE WHEN cache_status = ? THEN ? ELSE cache_status END", models.CacheStatusBuilding, models.CacheStatusNone),
			"error":        errMsg,
			"updated_at":   time.Now(),
		}).Error
}

func (r *SessionRepositoryImpl) CountByShareKey(ctx context.Context, shareKey string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SearchSession{}).
		Where("share_key = ?", shareKey).
		Count(&count).Error
	return count, err
}

func (r *SessionRepositoryImpl) GetLatestReadyByShareKey(ctx context.Context, shareKey string) (*models.SearchSession, error) {
	var session models.SearchSession
	err := r.db.WithContext(ctx).
		Where("share_key = ? AND cache_status = ?", shareKey, models.CacheStatusReady).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepositoryImpl) ExpireReadyBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.SearchSession{}).
		Where("cache_status = ? AND created_at < ?", models.CacheStatusReady, cutoff).
		Updates(map[string]interface{}{
			"cache_status": models.CacheStatusNone,
			"updated_at":   time.Now(),
		})
	return result.RowsAffected, result.Error
}
