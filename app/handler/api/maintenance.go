package handler

import (
	"log/slog"

	"storefront-service/app/domain"
	"storefront-service/app/handler/api/response"

	"github.com/gofiber/fiber/v2"
)

type MaintenanceHandler struct {
	usecase domain.MaintenanceUsecase
}

func NewMaintenanceHandler(usecase domain.MaintenanceUsecase) *MaintenanceHandler {
	return &MaintenanceHandler{usecase: usecase}
}

func (h *MaintenanceHandler) Sweep(c *fiber.Ctx) error {
	report, err := h.usecase.SweepOnce(c.Context())
	if err != nil {
		slog.ErrorContext(c.Context(), "[maintenanceHandler] Sweep", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(report))
}
