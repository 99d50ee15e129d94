package di

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"findme-api/application/serviceimpl"
	"findme-api/domain/repositories"
	"findme-api/domain/services"
	"findme-api/infrastructure/facepp"
	"findme-api/infrastructure/pixcheese"
	"findme-api/infrastructure/postgres"
	"findme-api/infrastructure/redis"
	"findme-api/interfaces/api/handlers"
	"findme-api/pkg/config"
	"findme-api/pkg/logger"
	"findme-api/pkg/scheduler"
)

type Container struct {
	// Configuration
	Config *config.Config

	// Infrastructure
	DB             *gorm.DB
	RedisClient    *redis.Client
	EventScheduler scheduler.EventScheduler

	// Clients
	FacePPClient    *facepp.Client
	PixcheeseClient *pixcheese.Client

	// Repositories
	SessionRepository    repositories.SessionRepository
	AlbumEntryRepository repositories.AlbumEntryRepository
	MatchRepository      repositories.MatchRepository

	// Services
	SearchService services.SearchService
}

func NewContainer() *Container {
	return &Container{}
}

func (c *Container) Initialize() error {
	if err := c.initConfig(); err != nil {
		return err
	}
	if err := c.initInfrastructure(); err != nil {
		return err
	}
	if err := c.initClients(); err != nil {
		return err
	}
	c.initRepositories()
	c.initServices()
	if err := c.initScheduler(); err != nil {
		return err
	}
	return nil
}

func (c *Container) initConfig() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	c.Config = cfg
	logger.Startup("config_loaded", "Configuration loaded", nil)
	return nil
}

func (c *Container) initInfrastructure() error {
	db, err := postgres.NewDatabase(postgres.DatabaseConfig{
		Host:     c.Config.Database.Host,
		Port:     c.Config.Database.Port,
		User:     c.Config.Database.User,
		Password: c.Config.Database.Password,
		DBName:   c.Config.Database.DBName,
		SSLMode:  c.Config.Database.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := postgres.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	c.DB = db
	logger.Startup("database_ready", "Database connected and migrated", nil)

	if c.Config.Redis.Enabled {
		redisClient, err := redis.NewClient(redis.Config{
			Host:     c.Config.Redis.Host,
			Port:     c.Config.Redis.Port,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		if err != nil {
			// Redis only coordinates cache builds; the API works without it
			logger.StartupWarn("redis_unavailable", "Redis unavailable, cache builds will not be coordinated", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			c.RedisClient = redisClient
			logger.Startup("redis_ready", "Redis connected", nil)
		}
	}

	return nil
}

func (c *Container) initClients() error {
	faceClient, err := facepp.NewClient(facepp.Config{
		BaseURL:   c.Config.FacePP.BaseURL,
		APIKey:    c.Config.FacePP.APIKey,
		APISecret: c.Config.FacePP.APISecret,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize recognition client: %w", err)
	}
	c.FacePPClient = faceClient

	c.PixcheeseClient = pixcheese.NewClient(pixcheese.Config{
		BaseURL:             c.Config.Pixcheese.BaseURL,
		AppID:               c.Config.Pixcheese.AppID,
		AppVersion:          c.Config.Pixcheese.AppVersion,
		Language:            c.Config.Pixcheese.Language,
		MaxPhotos:           c.Config.Pixcheese.MaxPhotos,
		PageSize:            c.Config.Pixcheese.PageSize,
		DownloadConcurrency: c.Config.Pixcheese.DownloadConcurrency,
	})

	logger.Startup("clients_ready", "External clients initialized", nil)
	return nil
}

func (c *Container) initRepositories() {
	c.SessionRepository = postgres.NewSessionRepository(c.DB)
	c.AlbumEntryRepository = postgres.NewAlbumEntryRepository(c.DB)
	c.MatchRepository = postgres.NewMatchRepository(c.DB)
}

func (c *Container) initServices() {
	c.SearchService = serviceimpl.NewSearchService(
		c.SessionRepository,
		c.AlbumEntryRepository,
		c.MatchRepository,
		c.FacePPClient,
		c.PixcheeseClient,
		c.RedisClient,
		c.Config.FindMe,
	)
}

func (c *Container) initScheduler() error {
	c.EventScheduler = scheduler.NewEventScheduler()

	ttl := time.Duration(c.Config.FindMe.CacheTTLHours) * time.Hour
	err := c.EventScheduler.AddJob("cache-expiry", "0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		expired, err := c.SessionRepository.ExpireReadyBefore(ctx, time.Now().Add(-ttl))
		if err != nil {
			logger.SchedulerError("cache_expiry_failed", "Cache expiry sweep failed", err, nil)
			return
		}
		if expired > 0 {
			logger.Scheduler("cache_expired", "Expired stale detection caches", map[string]interface{}{
				"expired": expired,
			})
		}
	})
	if err != nil {
		return err
	}

	c.EventScheduler.Start()
	return nil
}

// GetHandlerServices returns the services handlers depend on
func (c *Container) GetHandlerServices() *handlers.Services {
	return &handlers.Services{
		SearchService: c.SearchService,
	}
}

func (c *Container) GetConfig() *config.Config {
	return c.Config
}

func (c *Container) Cleanup() error {
	if c.EventScheduler != nil && c.EventScheduler.IsRunning() {
		c.EventScheduler.Stop()
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			logger.StartupError("redis_close_failed", "Failed to close Redis connection", err, nil)
		}
	}

	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				logger.StartupError("db_close_failed", "Failed to close database connection", err, nil)
			}
		}
	}

	return nil
}
