package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"findme-api/domain/models"
)

type SessionRepository interface {
	Create(ctx context.Context, session *models.SearchSession) error
	Update(ctx context.Context, session *models.SearchSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SearchSession, error)

	// MarkFailed finalizes a session on the error path. A building cache
	// status must be reverted to none in the same update.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error

	// Cache context queries, keyed by the normalized share key
	CountByShareKey(ctx context.Context, shareKey string) (int64, error)
	GetLatestReadyByShareKey(ctx context.Context, shareKey string) (*models.SearchSession, error)

	// ExpireReadyBefore demotes ready caches created before cutoff to none.
	// Returns the number of sessions demoted.
	ExpireReadyBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
