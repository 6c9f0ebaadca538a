package handler

import (
	"log/slog"

	"storefront-service/app/domain"
	"storefront-service/app/handler/api/response"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type StockHandler struct {
	stockUsecase domain.StockUsecase
	validator    *validator.Validate
}

func NewStockHandler(stockUsecase domain.StockUsecase, validator *validator.Validate) *StockHandler {
	return &StockHandler{
		stockUsecase: stockUsecase,
		validator:    validator,
	}
}

func (h *StockHandler) GetAvailability(c *fiber.Ctx) error {
	productID, err := uuidParam(c, "product_id")
	if err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] GetAvailability", "productID", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	availability, err := h.stockUsecase.GetAvailability(c.Context(), productID)
	if err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] GetAvailability", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(availability))
}

func (h *StockHandler) Restock(c *fiber.Ctx) error {
	productID, err := uuidParam(c, "product_id")
	if err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] Restock", "productID", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	var req domain.RestockRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] Restock", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] Restock", "validation", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrValidation))
	}

	availability, err := h.stockUsecase.Restock(c.Context(), productID, req)
	if err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] Restock", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(availability))
}

func (h *StockHandler) UpdateQuantity(c *fiber.Ctx) error {
	productID, err := uuidParam(c, "product_id")
	if err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] UpdateQuantity", "productID", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	var req domain.UpdateQuantityRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] UpdateQuantity", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] UpdateQuantity", "validation", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrValidation))
	}

	availability, err := h.stockUsecase.UpdateQuantity(c.Context(), productID, req)
	if err != nil {
		slog.ErrorContext(c.Context(), "[stockHandler] UpdateQuantity", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(availability))
}
