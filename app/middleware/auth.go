package middleware

import (
	"log/slog"

	"storefront-service/app/domain"
	"storefront-service/app/handler/api/response"
	"storefront-service/pkg"
	"storefront-service/pkg/ctxutil"

	"github.com/gofiber/fiber/v2"
)

func Auth(secretKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := pkg.BearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			slog.ErrorContext(c.Context(), "[middleware] Auth", "bearerToken", err)
			return c.Status(fiber.StatusUnauthorized).JSON(response.Error(domain.ErrUnauthorized))
		}

		return authenticate(c, token, secretKey)
	}
}

// OptionalAuth identifies the user when a token is sent and lets anonymous
// shoppers through otherwise. A token that is present but invalid is rejected.
func OptionalAuth(secretKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Next()
		}

		token, err := pkg.BearerToken(header)
		if err != nil {
			slog.ErrorContext(c.Context(), "[middleware] OptionalAuth", "bearerToken", err)
			return c.Status(fiber.StatusUnauthorized).JSON(response.Error(domain.ErrUnauthorized))
		}

		return authenticate(c, token, secretKey)
	}
}

func authenticate(c *fiber.Ctx, token, secretKey string) error {
	claims, err := pkg.ParseUserToken(token, secretKey)
	if err != nil {
		slog.ErrorContext(c.Context(), "[middleware] Auth", "parseUserToken", err)
		return c.Status(fiber.StatusUnauthorized).JSON(response.Error(domain.ErrUnauthorized))
	}

	if claims.UID == 0 {
		slog.ErrorContext(c.Context(), "[middleware] Auth", "userID", "0")
		return c.Status(fiber.StatusUnauthorized).JSON(response.Error(domain.ErrUnauthorized))
	}

	c.Locals(ctxutil.UserIDKey, claims.UID)
	return c.Next()
}
