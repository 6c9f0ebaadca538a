package db

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"storefront-service/app/domain"

	"github.com/gofrs/uuid/v5"
)

type productRepository struct {
	conn *sql.DB
}

func NewProductRepository(db *sql.DB) domain.ProductRepository {
	return &productRepository{db}
}

const productColumns = `id, name, sku, price, sale_price, stock_quantity, min_stock_level, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.SalePrice,
		&p.StockQuantity, &p.MinStockLevel, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *productRepository) GetByID(ctx context.Context, id uuid.UUID, tx *sql.Tx) (domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(runner(r.conn, tx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return product, domain.ErrProductNotFound
		}
		slog.ErrorContext(ctx, "[productRepository] GetByID", "queryRowContext", err)
		return product, err
	}

	return product, nil
}

func (r *productRepository) LockForUpdate(ctx context.Context, id uuid.UUID, tx *sql.Tx) (domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	product, err := scanProduct(runner(r.conn, tx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return product, domain.ErrProductNotFound
		}
		slog.ErrorContext(ctx, "[productRepository] LockForUpdate", "queryRowContext", err)
		return product, err
	}

	return product, nil
}

func (r *productRepository) DecrementStock(ctx context.Context, id uuid.UUID, quantity int64, tx *sql.Tx) (int64, error) {
	query := `UPDATE products SET stock_quantity = stock_quantity - $1, updated_at = NOW()
	WHERE id = $2 AND stock_quantity >= $1
	RETURNING stock_quantity`

	var stock int64
	err := runner(r.conn, tx).QueryRowContext(ctx, query, quantity, id).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrInsufficientStock
		}
		slog.ErrorContext(ctx, "[productRepository] DecrementStock", "queryRowContext", err)
		return 0, err
	}

	return stock, nil
}

func (r *productRepository) IncrementStock(ctx context.Context, id uuid.UUID, quantity int64, tx *sql.Tx) (int64, error) {
	query := `UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = NOW()
	WHERE id = $2
	RETURNING stock_quantity`

	var stock int64
	err := runner(r.conn, tx).QueryRowContext(ctx, query, quantity, id).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrProductNotFound
		}
		slog.ErrorContext(ctx, "[productRepository] IncrementStock", "queryRowContext", err)
		return 0, err
	}

	return stock, nil
}

func (r *productRepository) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int64, tx *sql.Tx) error {
	query := `UPDATE products SET stock_quantity = $1, updated_at = NOW() WHERE id = $2`

	res, err := runner(r.conn, tx).ExecContext(ctx, query, quantity, id)
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] UpdateQuantity", "execContext", err)
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[productRepository] UpdateQuantity", "rowsAffected", err)
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrProductNotFound
	}

	return nil
}

func (r *productRepository) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	return withTransaction(ctx, r.conn, "productRepository", fn)
}
