package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"storefront-service/app/domain"

	"github.com/gofrs/uuid/v5"
)

type orderRepository struct {
	conn *sql.DB
}

func NewOrderRepository(db *sql.DB) domain.OrderRepository {
	return &orderRepository{db}
}

const orderColumns = `id, user_id, status, total, created_at, updated_at`

func (r *orderRepository) Create(ctx context.Context, order *domain.Order, tx *sql.Tx) error {
	if order.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		order.ID = id
	}

	q := runner(r.conn, tx)

	query := `INSERT INTO orders (` + orderColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := q.ExecContext(ctx, query, order.ID, order.UserID, order.Status, order.Total, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] Create", "execContext", err)
		return err
	}

	if len(order.Items) == 0 {
		return nil
	}

	valuePlaceholders := []string{}
	valueArgs := []any{}
	for i, item := range order.Items {
		valuePlaceholders = append(valuePlaceholders, fmt.Sprintf("($%d, $%d, $%d, $%d)", i*4+1, i*4+2, i*4+3, i*4+4))
		valueArgs = append(valueArgs, order.ID, item.ProductID, item.Quantity, item.Price)
	}

	itemsQuery := fmt.Sprintf(`INSERT INTO order_items (order_id, product_id, quantity, price) VALUES %s`, strings.Join(valuePlaceholders, ", "))

	res, err := q.ExecContext(ctx, itemsQuery, valueArgs...)
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] Create", "execContext items", err)
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] Create", "rowsAffected", err)
		return err
	}

	if rowsAffected != int64(len(order.Items)) {
		slog.ErrorContext(ctx, "[orderRepository] Create", "rowsAffected", rowsAffected, "expected", len(order.Items))
		return fmt.Errorf("inserted %d of %d order items", rowsAffected, len(order.Items))
	}

	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID, tx *sql.Tx) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.get(ctx, "GetByID", runner(r.conn, tx), query, id)
}

func (r *orderRepository) LockForUpdate(ctx context.Context, id uuid.UUID, tx *sql.Tx) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return r.get(ctx, "LockForUpdate", runner(r.conn, tx), query, id)
}

func (r *orderRepository) get(ctx context.Context, method string, q querier, query string, id uuid.UUID) (domain.Order, error) {
	var order domain.Order
	err := q.QueryRowContext(ctx, query, id).Scan(&order.ID, &order.UserID, &order.Status,
		&order.Total, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return order, domain.ErrOrderNotFound
		}
		slog.ErrorContext(ctx, "[orderRepository] "+method, "queryRowContext", err)
		return order, err
	}

	itemsQuery := `SELECT product_id, quantity, price FROM order_items WHERE order_id = $1 ORDER BY product_id`
	rows, err := q.QueryContext(ctx, itemsQuery, id)
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] "+method, "queryContext items", err)
		return order, err
	}
	defer rows.Close()

	order.Items = []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.Price); err != nil {
			slog.ErrorContext(ctx, "[orderRepository] "+method, "scan", err)
			return order, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[orderRepository] "+method, "rowError", err)
		return order, err
	}

	return order, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus, now time.Time, tx *sql.Tx) error {
	query := `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`

	res, err := runner(r.conn, tx).ExecContext(ctx, query, status, now, id)
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] UpdateStatus", "execContext", err)
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[orderRepository] UpdateStatus", "rowsAffected", err)
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

func (r *orderRepository) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	return withTransaction(ctx, r.conn, "orderRepository", fn)
}
