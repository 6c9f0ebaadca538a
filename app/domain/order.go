package domain

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Order struct {
	ID        uuid.UUID       `json:"id"`
	UserID    int64           `json:"user_id"`
	Status    OrderStatus     `json:"status"`
	Total     decimal.Decimal `json:"total"`
	Items     []OrderItem     `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderStatusUpdateRequest struct {
	Status OrderStatus `json:"status" validate:"required,oneof=pending confirmed shipped delivered cancelled"`
}

type CheckoutResult struct {
	Order        Order                  `json:"order"`
	Reservations OrderReservationResult `json:"reservations"`
}

type OrderRepository interface {
	Create(ctx context.Context, order *Order, tx *sql.Tx) error
	GetByID(ctx context.Context, id uuid.UUID, tx *sql.Tx) (Order, error)
	LockForUpdate(ctx context.Context, id uuid.UUID, tx *sql.Tx) (Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status OrderStatus, now time.Time, tx *sql.Tx) error

	WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error
}

type OrderUsecase interface {
	Checkout(ctx context.Context, userID int64) (CheckoutResult, error)
	GetOrder(ctx context.Context, id uuid.UUID, userID *int64) (Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, req OrderStatusUpdateRequest) (Order, error)
}
