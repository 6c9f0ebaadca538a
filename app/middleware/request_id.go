package middleware

import (
	"log/slog"

	"storefront-service/pkg/ctxutil"

	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid/v5"
)

const RequestIDHeader = "X-Request-ID"

// AssignRequestID keeps the caller's request id or mints a new one, and
// echoes it back so logs on both sides line up.
func AssignRequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if id == "" {
			minted, err := uuid.NewV7()
			if err != nil {
				slog.WarnContext(c.Context(), "[middleware] AssignRequestID", "newV7", err)
				return c.Next()
			}
			id = minted.String()
		}

		c.Locals(ctxutil.RequestIDKey, id)
		c.Set(RequestIDHeader, id)
		return c.Next()
	}
}
