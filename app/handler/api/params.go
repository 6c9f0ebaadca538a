package handler

import (
	"fmt"

	"storefront-service/app/domain"
	"storefront-service/app/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid/v5"
)

func uuidParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	raw := c.Params(name)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is missing", domain.ErrBadRequest, name)
	}

	id, err := uuid.FromString(raw)
	if err != nil || id.IsNil() {
		return uuid.Nil, fmt.Errorf("%w: %s is not a valid id", domain.ErrBadRequest, name)
	}
	return id, nil
}

// cartOwner prefers the signed-in user over the anonymous session.
func cartOwner(c *fiber.Ctx) domain.CartOwner {
	owner := domain.CartOwner{SessionID: middleware.SessionID(c)}
	if userID, ok := middleware.UserID(c); ok {
		owner.UserID = &userID
	}
	return owner
}
