package middleware

import (
	"github.com/gofiber/fiber/v2"

	"findme-api/pkg/utils"
)

// Protected validates JWT tokens and sets the user context
func Protected(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return utils.UnauthorizedResponse(c, "Missing authorization header")
		}

		token := utils.ExtractTokenFromHeader(authHeader)
		if token == "" {
			return utils.UnauthorizedResponse(c, "Invalid authorization header format")
		}

		userCtx, err := utils.ValidateToken(token, jwtSecret)
		if err != nil {
			switch err {
			case utils.ErrExpiredToken:
				return utils.UnauthorizedResponse(c, "Token has expired")
			case utils.ErrMissingToken:
				return utils.UnauthorizedResponse(c, "Missing token")
			default:
				return utils.UnauthorizedResponse(c, "Invalid token")
			}
		}

		c.Locals("user", userCtx)
		return c.Next()
	}
}

// Optional sets the user context when a valid token is present but never
// rejects the request
func Optional(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Next()
		}

		token := utils.ExtractTokenFromHeader(authHeader)
		if token == "" {
			return c.Next()
		}

		userCtx, err := utils.ValidateToken(token, jwtSecret)
		if err != nil {
			return c.Next()
		}

		c.Locals("user", userCtx)
		return c.Next()
	}
}
