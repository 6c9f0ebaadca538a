package handler

import (
	"log/slog"

	"storefront-service/app/domain"
	"storefront-service/app/handler/api/response"
	"storefront-service/app/middleware"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type OrderHandler struct {
	orderUsecase domain.OrderUsecase
	validator    *validator.Validate
}

func NewOrderHandler(orderUsecase domain.OrderUsecase, validator *validator.Validate) *OrderHandler {
	return &OrderHandler{
		orderUsecase: orderUsecase,
		validator:    validator,
	}
}

func (h *OrderHandler) Checkout(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(response.Error(domain.ErrUnauthorized))
	}

	result, err := h.orderUsecase.Checkout(c.Context(), userID)
	if err != nil && len(result.Reservations.Failures) > 0 {
		slog.WarnContext(c.Context(), "[orderHandler] Checkout", "usecase", err)
		status, _ := response.FromError(err)
		return c.Status(status).JSON(response.ErrorWithData(err, result.Reservations))
	}
	if err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] Checkout", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusCreated).JSON(response.Success(result))
}

func (h *OrderHandler) Get(c *fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] Get", "id", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(response.Error(domain.ErrUnauthorized))
	}

	order, err := h.orderUsecase.GetOrder(c.Context(), id, &userID)
	if err != nil {
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(order))
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] UpdateStatus", "id", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	var req domain.OrderStatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] UpdateStatus", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] UpdateStatus", "validator", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrValidation))
	}

	order, err := h.orderUsecase.UpdateStatus(c.Context(), id, req)
	if err != nil {
		slog.ErrorContext(c.Context(), "[orderHandler] UpdateStatus", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(order))
}
