package usecase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"storefront-service/app/domain"
	"storefront-service/config"
	"storefront-service/pkg/clock"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

type orderUsecase struct {
	orderRepo    domain.OrderRepository
	cartRepo     domain.CartRepository
	reservations domain.ReservationUsecase
	clock        clock.Clock
	validate     *validator.Validate
	cfg          *config.Config
}

func NewOrderUsecase(
	orderRepo domain.OrderRepository,
	cartRepo domain.CartRepository,
	reservations domain.ReservationUsecase,
	clk clock.Clock,
	cfg *config.Config) domain.OrderUsecase {
	return &orderUsecase{orderRepo, cartRepo, reservations, clk, validator.New(), cfg}
}

// Checkout turns the user's cart into a pending order and holds stock for
// every line. Any line that cannot be held rejects the whole checkout.
func (u *orderUsecase) Checkout(ctx context.Context, userID int64) (domain.CheckoutResult, error) {
	var result domain.CheckoutResult
	err := u.orderRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		now := u.clock.Now()

		cart, err := u.cartRepo.GetByUserID(ctx, userID, tx)
		if errors.Is(err, domain.ErrCartNotFound) {
			return domain.ErrCartEmpty
		}
		if err != nil {
			return err
		}
		if cart.IsExpired(now) {
			return domain.ErrCartEmpty
		}

		items, err := u.cartRepo.GetItems(ctx, cart.ID, tx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return domain.ErrCartEmpty
		}

		order := domain.Order{
			UserID:    userID,
			Status:    domain.OrderStatusPending,
			Total:     decimal.Zero,
			Items:     make([]domain.OrderItem, 0, len(items)),
			CreatedAt: now,
			UpdatedAt: now,
		}
		for _, item := range items {
			order.Items = append(order.Items, domain.OrderItem{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price,
			})
			order.Total = order.Total.Add(item.Subtotal())
		}

		if err := u.orderRepo.Create(ctx, &order, tx); err != nil {
			slog.ErrorContext(ctx, "[orderUsecase] Checkout", "createOrder", err)
			return err
		}

		reserved, err := u.reservations.ReserveStockForOrder(ctx, order, u.cfg.Reservation.ExpirationMinutes)
		result = domain.CheckoutResult{Order: order, Reservations: reserved}
		if err != nil {
			return err
		}

		return u.cartRepo.Delete(ctx, cart.ID, tx)
	})
	if err != nil {
		if len(result.Reservations.Failures) > 0 {
			// The order was rolled back; only the per-product failures remain.
			return domain.CheckoutResult{Reservations: result.Reservations}, err
		}
		return domain.CheckoutResult{}, err
	}

	slog.InfoContext(ctx, "[orderUsecase] Checkout", "order_id", result.Order.ID, "user_id", userID, "total", result.Order.Total.String())
	return result, nil
}

func (u *orderUsecase) GetOrder(ctx context.Context, id uuid.UUID, userID *int64) (domain.Order, error) {
	order, err := u.orderRepo.GetByID(ctx, id, nil)
	if err != nil {
		return domain.Order{}, err
	}

	// Other users' orders are reported as missing rather than forbidden.
	if userID != nil && order.UserID != *userID {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	return order, nil
}

// UpdateStatus moves an order along its lifecycle and settles its stock
// holds: confirming consumes them, cancelling releases them.
func (u *orderUsecase) UpdateStatus(ctx context.Context, id uuid.UUID, req domain.OrderStatusUpdateRequest) (domain.Order, error) {
	if err := u.validate.Struct(req); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}

	var order domain.Order
	err := u.orderRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		order, err = u.orderRepo.LockForUpdate(ctx, id, tx)
		if err != nil {
			return err
		}

		if !order.Status.CanTransitionTo(req.Status) {
			return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, order.Status, req.Status)
		}

		switch req.Status {
		case domain.OrderStatusConfirmed:
			if _, err := u.reservations.ConfirmOrderReservations(ctx, id); err != nil {
				return err
			}
		case domain.OrderStatusCancelled:
			if _, err := u.reservations.CancelOrderReservations(ctx, id); err != nil {
				return err
			}
		}

		now := u.clock.Now()
		if err := u.orderRepo.UpdateStatus(ctx, id, req.Status, now, tx); err != nil {
			return err
		}

		order.Status = req.Status
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "[orderUsecase] UpdateStatus", "withTransaction", err, "order_id", id)
		return domain.Order{}, err
	}

	slog.InfoContext(ctx, "[orderUsecase] UpdateStatus", "order_id", id, "status", order.Status)
	return order, nil
}
