package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"leadflow/config"
)

// OperatorOnly guards operator endpoints with a static API key. With no key
// configured (development) the guard is a pass-through.
func OperatorOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := config.AppConfig.OperatorAPIKey
		if expected == "" {
			return c.Next()
		}

		provided := c.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid or missing API key",
			})
		}
		return c.Next()
	}
}
