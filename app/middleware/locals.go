package middleware

import (
	"storefront-service/pkg/ctxutil"

	"github.com/gofiber/fiber/v2"
)

// UserID returns the authenticated user set by Auth or OptionalAuth.
func UserID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(ctxutil.UserIDKey).(int64)
	return id, ok
}

func SessionID(c *fiber.Ctx) string {
	id, _ := c.Locals(ctxutil.SessionIDKey).(string)
	return id
}

func RequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(ctxutil.RequestIDKey).(string)
	return id
}
