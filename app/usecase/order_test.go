package usecase

import (
	"context"
	"testing"
	"time"

	"storefront-service/app/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) orderCount() int {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return len(e.store.orders)
}

func TestCheckout(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "a", 5, "10.00")
	b := env.addProduct(t, "b", 5, "5.00")
	cart := env.putCart(t, domain.Cart{UserID: ptr(int64(7))},
		domain.CartItem{ProductID: a.ID, Quantity: 2, Price: price("10")},
		domain.CartItem{ProductID: b.ID, Quantity: 1, Price: price("5")},
	)

	result, err := env.order.Checkout(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, result.Order.Status)
	assert.Equal(t, int64(7), result.Order.UserID)
	assert.True(t, price("25").Equal(result.Order.Total))
	assert.Len(t, result.Order.Items, 2)
	assert.True(t, result.Reservations.Success)
	assert.Len(t, result.Reservations.Reservations, 2)

	assert.False(t, env.cartExists(cart.ID))
	assert.Equal(t, int64(3), env.available(t, a.ID))
	assert.Equal(t, int64(4), env.available(t, b.ID))
	assert.Equal(t, int64(5), env.product(a.ID).StockQuantity)
}

func TestCheckout_RejectsShortage(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "a", 5, "10.00")
	b := env.addProduct(t, "b", 0, "5.00")
	cart := env.putCart(t, domain.Cart{UserID: ptr(int64(7))},
		domain.CartItem{ProductID: a.ID, Quantity: 2, Price: price("10")},
		domain.CartItem{ProductID: b.ID, Quantity: 1, Price: price("5")},
	)

	result, err := env.order.Checkout(context.Background(), 7)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Contains(t, err.Error(), b.ID.String())

	require.Len(t, result.Reservations.Failures, 1)
	assert.Equal(t, b.ID, result.Reservations.Failures[0].ProductID)
	assert.False(t, result.Reservations.Success)

	assert.Zero(t, env.orderCount())
	assert.Zero(t, env.reservationCount())
	assert.True(t, env.cartExists(cart.ID))
	assert.Equal(t, int64(5), env.available(t, a.ID))
}

func TestCheckout_RejectsDeletedProduct(t *testing.T) {
	env := newTestEnv(t)
	missing := newID()
	cart := env.putCart(t, domain.Cart{UserID: ptr(int64(7))},
		domain.CartItem{ProductID: missing, Quantity: 1, Price: price("10")},
	)

	result, err := env.order.Checkout(context.Background(), 7)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	require.Len(t, result.Reservations.Failures, 1)
	assert.Equal(t, missing, result.Reservations.Failures[0].ProductID)
	assert.Zero(t, env.orderCount())
	assert.True(t, env.cartExists(cart.ID))
}

func TestCheckout_EmptyCart(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.order.Checkout(context.Background(), 7)
	assert.ErrorIs(t, err, domain.ErrCartEmpty)

	env.putCart(t, domain.Cart{UserID: ptr(int64(7))})
	_, err = env.order.Checkout(context.Background(), 7)
	assert.ErrorIs(t, err, domain.ErrCartEmpty)
}

func checkout(t *testing.T, env *testEnv, userID int64, items ...domain.CartItem) domain.Order {
	t.Helper()
	env.putCart(t, domain.Cart{UserID: &userID}, items...)
	result, err := env.order.Checkout(context.Background(), userID)
	require.NoError(t, err)
	return result.Order
}

func TestOrderUpdateStatus_ConfirmConsumesStock(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "a", 5, "10.00")
	order := checkout(t, env, 7, domain.CartItem{ProductID: a.ID, Quantity: 2, Price: price("10")})

	updated, err := env.order.UpdateStatus(context.Background(), order.ID, domain.OrderStatusUpdateRequest{Status: domain.OrderStatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, updated.Status)
	assert.Equal(t, int64(3), env.product(a.ID).StockQuantity)
	assert.Equal(t, int64(3), env.available(t, a.ID))

	reservations, err := env.reservation.ListOrderReservations(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, domain.ReservationStatusConfirmed, reservations[0].Status)

	_, err = env.order.UpdateStatus(context.Background(), order.ID, domain.OrderStatusUpdateRequest{Status: domain.OrderStatusShipped})
	require.NoError(t, err)

	_, err = env.order.UpdateStatus(context.Background(), order.ID, domain.OrderStatusUpdateRequest{Status: domain.OrderStatusCancelled})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestOrderUpdateStatus_CancelReleasesHolds(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "a", 5, "10.00")
	order := checkout(t, env, 7, domain.CartItem{ProductID: a.ID, Quantity: 4, Price: price("10")})
	assert.Equal(t, int64(1), env.available(t, a.ID))

	updated, err := env.order.UpdateStatus(context.Background(), order.ID, domain.OrderStatusUpdateRequest{Status: domain.OrderStatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, updated.Status)
	assert.Equal(t, int64(5), env.available(t, a.ID))
	assert.Equal(t, int64(5), env.product(a.ID).StockQuantity)
}

func TestOrderUpdateStatus_ConfirmFailureKeepsOrderPending(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "a", 5, "10.00")
	order := checkout(t, env, 7, domain.CartItem{ProductID: a.ID, Quantity: 4, Price: price("10")})
	env.setStock(a.ID, 1)

	_, err := env.order.UpdateStatus(context.Background(), order.ID, domain.OrderStatusUpdateRequest{Status: domain.OrderStatusConfirmed})
	require.ErrorIs(t, err, domain.ErrStockConflict)

	stored, err := env.order.GetOrder(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
}

func TestOrderUpdateStatus_ConfirmAfterHoldsLapse(t *testing.T) {
	for _, swept := range []bool{false, true} {
		name := "unswept"
		if swept {
			name = "swept"
		}
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			a := env.addProduct(t, "a", 5, "10.00")
			order := checkout(t, env, 7, domain.CartItem{ProductID: a.ID, Quantity: 4, Price: price("10")})

			env.clock.Advance(31 * time.Minute)
			if swept {
				expired, err := env.reservation.CleanExpiredReservations(context.Background())
				require.NoError(t, err)
				require.Equal(t, int64(1), expired)
			}

			_, err := env.order.UpdateStatus(context.Background(), order.ID, domain.OrderStatusUpdateRequest{Status: domain.OrderStatusConfirmed})
			require.ErrorIs(t, err, domain.ErrReservationNotActive)

			stored, err := env.order.GetOrder(context.Background(), order.ID, nil)
			require.NoError(t, err)
			assert.Equal(t, domain.OrderStatusPending, stored.Status)
			assert.Equal(t, int64(5), env.product(a.ID).StockQuantity)
			assert.Equal(t, int64(5), env.available(t, a.ID))
		})
	}
}

func TestOrderUpdateStatus_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.order.UpdateStatus(context.Background(), newID(), domain.OrderStatusUpdateRequest{Status: "lost"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.order.UpdateStatus(context.Background(), newID(), domain.OrderStatusUpdateRequest{Status: domain.OrderStatusConfirmed})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestGetOrder_ChecksOwner(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "a", 5, "10.00")
	order := checkout(t, env, 7, domain.CartItem{ProductID: a.ID, Quantity: 1, Price: price("10")})

	got, err := env.order.GetOrder(context.Background(), order.ID, ptr(int64(7)))
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = env.order.GetOrder(context.Background(), order.ID, ptr(int64(8)))
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = env.order.GetOrder(context.Background(), order.ID, nil)
	assert.NoError(t, err)
}
