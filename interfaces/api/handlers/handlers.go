package handlers

import (
	"gorm.io/gorm"

	"findme-api/domain/services"
	"findme-api/infrastructure/redis"
	"findme-api/pkg/config"
)

// Services contains all the services needed for handlers
type Services struct {
	SearchService services.SearchService
}

// Handlers contains all HTTP handlers
type Handlers struct {
	Search *SearchHandler
	Health *HealthHandler
}

// NewHandlers creates a new instance of Handlers with all dependencies
func NewHandlers(services *Services, db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *Handlers {
	return &Handlers{
		Search: NewSearchHandler(services.SearchService, cfg.FindMe),
		Health: NewHealthHandler(db, redisClient),
	}
}
