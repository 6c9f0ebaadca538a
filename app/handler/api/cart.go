package handler

import (
	"log/slog"

	"storefront-service/app/domain"
	"storefront-service/app/handler/api/response"
	"storefront-service/app/middleware"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type CartHandler struct {
	cartUsecase  domain.CartUsecase
	mergeUsecase domain.CartMergeUsecase
	validator    *validator.Validate
}

func NewCartHandler(cartUsecase domain.CartUsecase, mergeUsecase domain.CartMergeUsecase, validator *validator.Validate) *CartHandler {
	return &CartHandler{
		cartUsecase:  cartUsecase,
		mergeUsecase: mergeUsecase,
		validator:    validator,
	}
}

func (h *CartHandler) Get(c *fiber.Ctx) error {
	cart, err := h.cartUsecase.GetCart(c.Context(), cartOwner(c))
	if err != nil {
		slog.ErrorContext(c.Context(), "[cartHandler] Get", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(cart))
}

func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	var req domain.CartItemAddRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(c.Context(), "[cartHandler] AddItem", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(c.Context(), "[cartHandler] AddItem", "validator", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrValidation))
	}

	cart, err := h.cartUsecase.AddItem(c.Context(), cartOwner(c), req)
	if err != nil {
		slog.ErrorContext(c.Context(), "[cartHandler] AddItem", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(cart))
}

func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	productID, err := uuidParam(c, "product_id")
	if err != nil {
		slog.ErrorContext(c.Context(), "[cartHandler] UpdateItem", "productID", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	var req domain.CartItemUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(c.Context(), "[cartHandler] UpdateItem", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(c.Context(), "[cartHandler] UpdateItem", "validator", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrValidation))
	}

	cart, err := h.cartUsecase.UpdateItemQuantity(c.Context(), cartOwner(c), productID, req)
	if err != nil {
		slog.ErrorContext(c.Context(), "[cartHandler] UpdateItem", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(cart))
}

func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	productID, err := uuidParam(c, "product_id")
	if err != nil {
		slog.ErrorContext(c.Context(), "[cartHandler] RemoveItem", "productID", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	cart, err := h.cartUsecase.RemoveItem(c.Context(), cartOwner(c), productID)
	if err != nil {
		slog.ErrorContext(c.Context(), "[cartHandler] RemoveItem", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(cart))
}

func (h *CartHandler) Clear(c *fiber.Ctx) error {
	if err := h.cartUsecase.ClearCart(c.Context(), cartOwner(c)); err != nil {
		slog.ErrorContext(c.Context(), "[cartHandler] Clear", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(nil))
}

// Merge is called right after login. The session comes from the body when
// the auth workflow calls on the shopper's behalf, otherwise from the request.
func (h *CartHandler) Merge(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(response.Error(domain.ErrUnauthorized))
	}

	var req domain.MergeCartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			slog.ErrorContext(c.Context(), "[cartHandler] Merge", "bodyParser", err)
			return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
		}
	}
	if req.SessionID == "" {
		req.SessionID = middleware.SessionID(c)
	}

	result, err := h.mergeUsecase.MergeAnonymousCart(c.Context(), userID, req.SessionID)
	if err != nil {
		slog.ErrorContext(c.Context(), "[cartHandler] Merge", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(result))
}
