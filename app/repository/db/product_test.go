package db

import (
	"context"
	"database/sql"
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

var productCols = []string{"id", "name", "sku", "price", "sale_price", "stock_quantity", "min_stock_level", "created_at", "updated_at"}

func TestProductRepository_GetByID(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewProductRepository(conn)

	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM products WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(productCols).
			AddRow(id.String(), "Mug", "MUG-1", "12.50", "9.99", int64(10), int64(2), now, now))

	product, err := repo.GetByID(context.Background(), id, nil)
	require.NoError(t, err)
	assert.Equal(t, id, product.ID)
	assert.Equal(t, int64(10), product.StockQuantity)
	assert.True(t, decimal.RequireFromString("9.99").Equal(product.EffectivePrice()))
	assert.True(t, product.OriginalPrice().Valid)
}

func TestProductRepository_GetByID_NotFound(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewProductRepository(conn)

	id := uuid.Must(uuid.NewV7())
	mock.ExpectQuery(regexp.QuoteMeta(`FROM products WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(productCols))

	_, err := repo.GetByID(context.Background(), id, nil)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProductRepository_LockForUpdate(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewProductRepository(conn)

	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM products WHERE id = $1 FOR UPDATE`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(productCols).
			AddRow(id.String(), "Mug", "MUG-1", "12.50", nil, int64(3), int64(5), now, now))
	mock.ExpectCommit()

	err := repo.WithTransaction(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		product, err := repo.LockForUpdate(ctx, id, tx)
		require.NoError(t, err)
		assert.True(t, product.IsLowStock())
		assert.False(t, product.OriginalPrice().Valid)
		return nil
	})
	require.NoError(t, err)
}

func TestProductRepository_DecrementStock(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewProductRepository(conn)

	id := uuid.Must(uuid.NewV7())
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE products SET stock_quantity = stock_quantity - $1`)).
		WithArgs(int64(3), id).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(int64(7)))

	stock, err := repo.DecrementStock(context.Background(), id, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stock)
}

func TestProductRepository_DecrementStock_Insufficient(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewProductRepository(conn)

	id := uuid.Must(uuid.NewV7())
	mock.ExpectQuery(regexp.QuoteMeta(`AND stock_quantity >= $1`)).
		WithArgs(int64(30), id).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}))

	_, err := repo.DecrementStock(context.Background(), id, 30, nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestProductRepository_IncrementStock(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewProductRepository(conn)

	id := uuid.Must(uuid.NewV7())
	mock.ExpectQuery(regexp.QuoteMeta(`SET stock_quantity = stock_quantity + $1`)).
		WithArgs(int64(5), id).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(int64(15)))

	stock, err := repo.IncrementStock(context.Background(), id, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(15), stock)
}

func TestProductRepository_UpdateQuantity_NotFound(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewProductRepository(conn)

	id := uuid.Must(uuid.NewV7())
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET stock_quantity = $1`)).
		WithArgs(int64(4), id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateQuantity(context.Background(), id, 4, nil)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}
