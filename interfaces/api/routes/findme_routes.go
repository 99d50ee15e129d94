package routes

import (
	"github.com/gofiber/fiber/v2"

	"findme-api/interfaces/api/handlers"
	"findme-api/interfaces/api/middleware"
	"findme-api/pkg/config"
)

func SetupFindMeRoutes(api fiber.Router, h *handlers.Handlers, cfg *config.Config) {
	findme := api.Group("/findme")

	// The run endpoint is expensive: rate limited per IP, auth optional
	findme.Post("/search",
		middleware.RateLimiter(&cfg.RateLimit),
		middleware.Optional(cfg.JWT.Secret),
		h.Search.RunSearch,
	)

	findme.Get("/sessions/:id", h.Search.GetSession)
}
