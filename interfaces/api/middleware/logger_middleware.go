package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"findme-api/pkg/logger"
)

// RequestLogger logs every request with its latency and status code
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		logger.API("request", "HTTP request handled", map[string]interface{}{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.IP(),
		})

		return err
	}
}
