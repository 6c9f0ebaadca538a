package domain

import (
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidRequest = errors.New("invalid request")
	ErrValidation     = errors.New("validation error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternal       = errors.New("internal server error")

	ErrProductNotFound     = fmt.Errorf("product %w", ErrNotFound)
	ErrReservationNotFound = fmt.Errorf("reservation %w", ErrNotFound)
	ErrCartNotFound        = fmt.Errorf("cart %w", ErrNotFound)
	ErrCartItemNotFound    = fmt.Errorf("cart item %w", ErrNotFound)
	ErrOrderNotFound       = fmt.Errorf("order %w", ErrNotFound)

	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrStockConflict        = errors.New("insufficient stock to confirm")
	ErrReservationNotActive = errors.New("reservation not active")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrCartEmpty            = errors.New("cart is empty")
)

// StockShortageError reports how far a request is from the available stock.
// It matches ErrInsufficientStock with errors.Is.
type StockShortageError struct {
	ProductID uuid.UUID
	Requested int64
	Available int64
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockShortageError) Unwrap() error {
	return ErrInsufficientStock
}
