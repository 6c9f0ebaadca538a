package db

import (
	"context"
	"regexp"
	"testing"
	"time"

	"storefront-service/app/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	cartCols     = []string{"id", "user_id", "session_id", "expires_at", "created_at", "updated_at"}
	cartItemCols = []string{"id", "cart_id", "product_id", "quantity", "price", "original_price", "created_at", "updated_at"}
)

func TestCartRepository_GetAnonymousBySessionID(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCartRepository(conn)

	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()
	expires := now.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM carts WHERE session_id = $1 AND user_id IS NULL`)).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows(cartCols).AddRow(id.String(), nil, "sess-1", expires, now, now))

	cart, err := repo.GetAnonymousBySessionID(context.Background(), "sess-1", nil)
	require.NoError(t, err)
	assert.True(t, cart.IsAnonymous())
	require.NotNil(t, cart.SessionID)
	assert.Equal(t, "sess-1", *cart.SessionID)
	assert.False(t, cart.IsExpired(now))
}

func TestCartRepository_GetByUserID_NotFound(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCartRepository(conn)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM carts WHERE user_id = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(cartCols))

	_, err := repo.GetByUserID(context.Background(), 7, nil)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestCartRepository_DeleteExpiredAnonymous(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCartRepository(conn)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM carts`)).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"session_id"}).AddRow("a").AddRow(nil).AddRow("b"))

	sessions, err := repo.DeleteExpiredAnonymous(context.Background(), now, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sessions)
}

func TestCartRepository_GetItems(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCartRepository(conn)

	cartID := uuid.Must(uuid.NewV7())
	productID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM cart_items WHERE cart_id = $1`)).
		WithArgs(cartID).
		WillReturnRows(sqlmock.NewRows(cartItemCols).
			AddRow(uuid.Must(uuid.NewV7()).String(), cartID.String(), productID.String(), int64(3), "8.00", "10.00", now, now))

	items, err := repo.GetItems(context.Background(), cartID, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, productID, items[0].ProductID)
	assert.True(t, decimal.RequireFromString("24").Equal(items[0].Subtotal()))
	assert.True(t, items[0].OriginalPrice.Valid)
}

func TestCartRepository_CreateItem(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCartRepository(conn)

	now := time.Now().UTC()
	item := &domain.CartItem{
		CartID:    uuid.Must(uuid.NewV7()),
		ProductID: uuid.Must(uuid.NewV7()),
		Quantity:  2,
		Price:     decimal.RequireFromString("5.50"),
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO cart_items`)).
		WithArgs(sqlmock.AnyArg(), item.CartID, item.ProductID, int64(2), "5.5", nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateItem(context.Background(), item, nil))
	assert.NotEqual(t, uuid.Nil, item.ID)
}

func TestCartRepository_UpdateItem_NotFound(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCartRepository(conn)

	item := domain.CartItem{ID: uuid.Must(uuid.NewV7()), Quantity: 1, Price: decimal.NewFromInt(1)}
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE cart_items SET quantity = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateItem(context.Background(), item, nil)
	assert.ErrorIs(t, err, domain.ErrCartItemNotFound)
}
