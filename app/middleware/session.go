package middleware

import (
	"log/slog"
	"time"

	"storefront-service/app/domain"
	"storefront-service/app/handler/api/response"
	"storefront-service/pkg/ctxutil"

	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid/v5"
)

const (
	SessionIDHeader   = "X-Session-ID"
	SessionCookieName = "cart_session"

	maxSessionIDLength = 128
)

// Session resolves the anonymous shopper's session from the header or the
// cookie and issues a fresh one when neither is sent.
func Session(ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Get(SessionIDHeader)
		if sessionID == "" {
			sessionID = c.Cookies(SessionCookieName)
		}
		if len(sessionID) > maxSessionIDLength {
			slog.WarnContext(c.Context(), "[middleware] Session", "sessionID", "too long")
			return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
		}

		if sessionID == "" {
			id, err := uuid.NewV4()
			if err != nil {
				slog.ErrorContext(c.Context(), "[middleware] Session", "newV4", err)
				return c.Status(fiber.StatusInternalServerError).JSON(response.Error(domain.ErrInternal))
			}
			sessionID = id.String()
		}

		c.Cookie(&fiber.Cookie{
			Name:     SessionCookieName,
			Value:    sessionID,
			Path:     "/",
			Expires:  time.Now().Add(ttl),
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		c.Set(SessionIDHeader, sessionID)
		c.Locals(ctxutil.SessionIDKey, sessionID)
		return c.Next()
	}
}
