package domain

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofrs/uuid/v5"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusExpired   ReservationStatus = "expired"
)

func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationStatusConfirmed || s == ReservationStatusCancelled || s == ReservationStatusExpired
}

// StockReservation is a temporary hold against a product's stock. Rows are kept
// after they reach a terminal status.
type StockReservation struct {
	ID        uuid.UUID         `json:"id"`
	ProductID uuid.UUID         `json:"product_id"`
	OrderID   *uuid.UUID        `json:"order_id,omitempty"`
	UserID    *int64            `json:"user_id,omitempty"`
	SessionID *string           `json:"session_id,omitempty"`
	Quantity  int64             `json:"quantity"`
	Status    ReservationStatus `json:"status"` // "pending", "confirmed", "cancelled", "expired"
	ExpiresAt time.Time         `json:"expires_at"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// IsActive reports whether the reservation still counts against availability.
func (r StockReservation) IsActive(now time.Time) bool {
	return r.Status == ReservationStatusPending && r.ExpiresAt.After(now)
}

type ReservationCreateRequest struct {
	ProductID         uuid.UUID      `json:"product_id" validate:"required"`
	Quantity          int64          `json:"quantity" validate:"gt=0"`
	OrderID           *uuid.UUID     `json:"order_id"`
	UserID            *int64         `json:"user_id"`
	SessionID         *string        `json:"session_id"`
	ExpirationMinutes int            `json:"expiration_minutes" validate:"gte=0"`
	Metadata          map[string]any `json:"metadata"`
}

type ReservationResult struct {
	ReservationID  uuid.UUID `json:"reservation_id"`
	ProductID      uuid.UUID `json:"product_id"`
	Quantity       int64     `json:"quantity"`
	ExpiresAt      string    `json:"expires_at"`
	AvailableStock int64     `json:"available_stock"`
}

type ConfirmResult struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ProductID     uuid.UUID `json:"product_id"`
	StockQuantity int64     `json:"stock_quantity"`
}

type CancelResult struct {
	ReservationID   uuid.UUID         `json:"reservation_id"`
	Status          ReservationStatus `json:"status"`
	AlreadyTerminal bool              `json:"already_terminal"`
}

type ReservationFailure struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int64     `json:"requested"`
	Available int64     `json:"available"`
	Reason    string    `json:"reason"`
}

type OrderReservationResult struct {
	Success      bool                 `json:"success"`
	OrderID      uuid.UUID            `json:"order_id"`
	Reservations []ReservationResult  `json:"reservations,omitempty"`
	Failures     []ReservationFailure `json:"failures,omitempty"`
}

type OrderReservationSummary struct {
	OrderID   uuid.UUID         `json:"order_id"`
	Status    ReservationStatus `json:"status"`
	Processed int               `json:"processed"`
}

type ReservationRepository interface {
	Create(ctx context.Context, r *StockReservation, tx *sql.Tx) error
	GetByID(ctx context.Context, id uuid.UUID, tx *sql.Tx) (StockReservation, error)
	GetByOrderIDAndStatus(ctx context.Context, orderID uuid.UUID, status ReservationStatus, tx *sql.Tx) ([]StockReservation, error)
	SumActiveByProductID(ctx context.Context, productID uuid.UUID, now time.Time, tx *sql.Tx) (int64, error)
	// UpdateStatus moves a reservation from one status to another and reports
	// false when the row was no longer in the expected status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to ReservationStatus, now time.Time, tx *sql.Tx) (bool, error)
	CancelPendingByOrderID(ctx context.Context, orderID uuid.UUID, now time.Time, tx *sql.Tx) ([]uuid.UUID, error)
	ExpirePending(ctx context.Context, now time.Time, tx *sql.Tx) ([]uuid.UUID, error)
	DeleteInactiveBySessionIDs(ctx context.Context, sessionIDs []string, now time.Time, tx *sql.Tx) (int64, error)
}

type ReservationUsecase interface {
	StockChecker

	CreateReservation(ctx context.Context, req ReservationCreateRequest) (ReservationResult, error)
	GetReservation(ctx context.Context, id uuid.UUID) (StockReservation, error)
	ConfirmReservation(ctx context.Context, id uuid.UUID) (ConfirmResult, error)
	CancelReservation(ctx context.Context, id uuid.UUID) (CancelResult, error)

	ReserveStockForOrder(ctx context.Context, order Order, expirationMinutes int) (OrderReservationResult, error)
	ListOrderReservations(ctx context.Context, orderID uuid.UUID) ([]StockReservation, error)
	ConfirmOrderReservations(ctx context.Context, orderID uuid.UUID) (OrderReservationSummary, error)
	CancelOrderReservations(ctx context.Context, orderID uuid.UUID) (OrderReservationSummary, error)

	CleanExpiredReservations(ctx context.Context) (int64, error)
}
