package middleware

import (
	"crypto/subtle"
	"log/slog"

	"storefront-service/app/domain"
	"storefront-service/app/handler/api/response"
	"storefront-service/config"

	"github.com/gofiber/fiber/v2"
)

const InternalAuthHeader = "X-Internal-Auth"

// InternalOnly admits service-to-service calls that present the shared
// secret. An unset secret closes the internal routes entirely.
func InternalOnly(cfg *config.Config) fiber.Handler {
	secret := []byte(cfg.InternalAuthHeader)
	return func(c *fiber.Ctx) error {
		presented := []byte(c.Get(InternalAuthHeader))
		if len(secret) == 0 || subtle.ConstantTimeCompare(presented, secret) != 1 {
			slog.WarnContext(c.Context(), "[middleware] InternalOnly", "rejected", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(response.Error(domain.ErrUnauthorized))
		}
		return c.Next()
	}
}
