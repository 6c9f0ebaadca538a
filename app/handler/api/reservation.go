package handler

import (
	"log/slog"

	"storefront-service/app/domain"
	"storefront-service/app/handler/api/response"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type ReservationHandler struct {
	usecase   domain.ReservationUsecase
	validator *validator.Validate
}

func NewReservationHandler(usecase domain.ReservationUsecase, validator *validator.Validate) *ReservationHandler {
	return &ReservationHandler{
		usecase:   usecase,
		validator: validator,
	}
}

func (h *ReservationHandler) Create(c *fiber.Ctx) error {
	var req domain.ReservationCreateRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(c.Context(), "[reservationHandler] Create", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(c.Context(), "[reservationHandler] Create", "validator", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrValidation))
	}

	result, err := h.usecase.CreateReservation(c.Context(), req)
	if err != nil {
		slog.ErrorContext(c.Context(), "[reservationHandler] Create", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusCreated).JSON(response.Success(result))
}

func (h *ReservationHandler) Get(c *fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		slog.ErrorContext(c.Context(), "[reservationHandler] Get", "id", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	reservation, err := h.usecase.GetReservation(c.Context(), id)
	if err != nil {
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(reservation))
}

func (h *ReservationHandler) Confirm(c *fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		slog.ErrorContext(c.Context(), "[reservationHandler] Confirm", "id", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	result, err := h.usecase.ConfirmReservation(c.Context(), id)
	if err != nil {
		slog.ErrorContext(c.Context(), "[reservationHandler] Confirm", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(result))
}

func (h *ReservationHandler) Cancel(c *fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		slog.ErrorContext(c.Context(), "[reservationHandler] Cancel", "id", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	result, err := h.usecase.CancelReservation(c.Context(), id)
	if err != nil {
		slog.ErrorContext(c.Context(), "[reservationHandler] Cancel", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(result))
}

func (h *ReservationHandler) ListByOrder(c *fiber.Ctx) error {
	orderID, err := uuidParam(c, "id")
	if err != nil {
		slog.ErrorContext(c.Context(), "[reservationHandler] ListByOrder", "orderID", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	reservations, err := h.usecase.ListOrderReservations(c.Context(), orderID)
	if err != nil {
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(reservations))
}

func (h *ReservationHandler) ConfirmOrder(c *fiber.Ctx) error {
	orderID, err := uuidParam(c, "id")
	if err != nil {
		slog.ErrorContext(c.Context(), "[reservationHandler] ConfirmOrder", "orderID", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	summary, err := h.usecase.ConfirmOrderReservations(c.Context(), orderID)
	if err != nil {
		slog.ErrorContext(c.Context(), "[reservationHandler] ConfirmOrder", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(summary))
}

func (h *ReservationHandler) CancelOrder(c *fiber.Ctx) error {
	orderID, err := uuidParam(c, "id")
	if err != nil {
		slog.ErrorContext(c.Context(), "[reservationHandler] CancelOrder", "orderID", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	summary, err := h.usecase.CancelOrderReservations(c.Context(), orderID)
	if err != nil {
		slog.ErrorContext(c.Context(), "[reservationHandler] CancelOrder", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(summary))
}
