package routes

import (
	"github.com/gofiber/fiber/v2"

	"findme-api/interfaces/api/handlers"
	"findme-api/pkg/config"
)

func SetupRoutes(app *fiber.App, h *handlers.Handlers, cfg *config.Config) {
	SetupHealthRoutes(app, h.Health)

	// API version group
	api := app.Group("/api/v1")

	SetupFindMeRoutes(api, h, cfg)
}
