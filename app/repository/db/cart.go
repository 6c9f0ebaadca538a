package db

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"storefront-service/app/domain"

	"github.com/gofrs/uuid/v5"
)

type cartRepository struct {
	conn *sql.DB
}

func NewCartRepository(db *sql.DB) domain.CartRepository {
	return &cartRepository{db}
}

const (
	cartColumns     = `id, user_id, session_id, expires_at, created_at, updated_at`
	cartItemColumns = `id, cart_id, product_id, quantity, price, original_price, created_at, updated_at`
)

func scanCart(row interface{ Scan(...any) error }) (domain.Cart, error) {
	var (
		cart      domain.Cart
		userID    sql.NullInt64
		sessionID sql.NullString
		expiresAt sql.NullTime
	)

	if err := row.Scan(&cart.ID, &userID, &sessionID, &expiresAt, &cart.CreatedAt, &cart.UpdatedAt); err != nil {
		return cart, err
	}

	if userID.Valid {
		cart.UserID = &userID.Int64
	}
	if sessionID.Valid {
		cart.SessionID = &sessionID.String
	}
	if expiresAt.Valid {
		cart.ExpiresAt = &expiresAt.Time
	}

	return cart, nil
}

func scanCartItem(row interface{ Scan(...any) error }) (domain.CartItem, error) {
	var item domain.CartItem
	err := row.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity,
		&item.Price, &item.OriginalPrice, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (r *cartRepository) GetByUserID(ctx context.Context, userID int64, tx *sql.Tx) (domain.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1`

	cart, err := scanCart(runner(r.conn, tx).QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cart, domain.ErrCartNotFound
		}
		slog.ErrorContext(ctx, "[cartRepository] GetByUserID", "queryRowContext", err)
		return cart, err
	}

	return cart, nil
}

func (r *cartRepository) GetAnonymousBySessionID(ctx context.Context, sessionID string, tx *sql.Tx) (domain.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE session_id = $1 AND user_id IS NULL`

	cart, err := scanCart(runner(r.conn, tx).QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cart, domain.ErrCartNotFound
		}
		slog.ErrorContext(ctx, "[cartRepository] GetAnonymousBySessionID", "queryRowContext", err)
		return cart, err
	}

	return cart, nil
}

func (r *cartRepository) Create(ctx context.Context, cart *domain.Cart, tx *sql.Tx) error {
	if cart.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		cart.ID = id
	}

	query := `INSERT INTO carts (` + cartColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := runner(r.conn, tx).ExecContext(ctx, query, cart.ID, cart.UserID, cart.SessionID,
		cart.ExpiresAt, cart.CreatedAt, cart.UpdatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "[cartRepository] Create", "execContext", err)
		return err
	}

	return nil
}

func (r *cartRepository) Touch(ctx context.Context, cartID uuid.UUID, expiresAt, now time.Time, tx *sql.Tx) error {
	query := `UPDATE carts SET expires_at = $1, updated_at = $2 WHERE id = $3`

	_, err := runner(r.conn, tx).ExecContext(ctx, query, expiresAt, now, cartID)
	if err != nil {
		slog.ErrorContext(ctx, "[cartRepository] Touch", "execContext", err)
		return err
	}

	return nil
}

func (r *cartRepository) Delete(ctx context.Context, cartID uuid.UUID, tx *sql.Tx) error {
	query := `DELETE FROM carts WHERE id = $1`

	_, err := runner(r.conn, tx).ExecContext(ctx, query, cartID)
	if err != nil {
		slog.ErrorContext(ctx, "[cartRepository] Delete", "execContext", err)
		return err
	}

	return nil
}

func (r *cartRepository) DeleteExpiredAnonymous(ctx context.Context, now time.Time, tx *sql.Tx) ([]string, error) {
	query := `DELETE FROM carts
	WHERE user_id IS NULL AND expires_at IS NOT NULL AND expires_at <= $1
	RETURNING session_id`

	rows, err := runner(r.conn, tx).QueryContext(ctx, query, now)
	if err != nil {
		slog.ErrorContext(ctx, "[cartRepository] DeleteExpiredAnonymous", "queryContext", err)
		return nil, err
	}
	defer rows.Close()

	var sessionIDs []string
	for rows.Next() {
		var sessionID sql.NullString
		if err := rows.Scan(&sessionID); err != nil {
			slog.ErrorContext(ctx, "[cartRepository] DeleteExpiredAnonymous", "scan", err)
			return nil, err
		}
		if sessionID.Valid {
			sessionIDs = append(sessionIDs, sessionID.String)
		}
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[cartRepository] DeleteExpiredAnonymous", "rowError", err)
		return nil, err
	}

	return sessionIDs, nil
}

func (r *cartRepository) GetItems(ctx context.Context, cartID uuid.UUID, tx *sql.Tx) ([]domain.CartItem, error) {
	query := `SELECT ` + cartItemColumns + ` FROM cart_items WHERE cart_id = $1 ORDER BY created_at, id`

	rows, err := runner(r.conn, tx).QueryContext(ctx, query, cartID)
	if err != nil {
		slog.ErrorContext(ctx, "[cartRepository] GetItems", "queryContext", err)
		return nil, err
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			slog.ErrorContext(ctx, "[cartRepository] GetItems", "scan", err)
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[cartRepository] GetItems", "rowError", err)
		return nil, err
	}

	return items, nil
}

func (r *cartRepository) GetItem(ctx context.Context, cartID, productID uuid.UUID, tx *sql.Tx) (domain.CartItem, error) {
	query := `SELECT ` + cartItemColumns + ` FROM cart_items WHERE cart_id = $1 AND product_id = $2`

	item, err := scanCartItem(runner(r.conn, tx).QueryRowContext(ctx, query, cartID, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return item, domain.ErrCartItemNotFound
		}
		slog.ErrorContext(ctx, "[cartRepository] GetItem", "queryRowContext", err)
		return item, err
	}

	return item, nil
}

func (r *cartRepository) CreateItem(ctx context.Context, item *domain.CartItem, tx *sql.Tx) error {
	if item.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		item.ID = id
	}

	query := `INSERT INTO cart_items (` + cartItemColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := runner(r.conn, tx).ExecContext(ctx, query, item.ID, item.CartID, item.ProductID, item.Quantity,
		item.Price, item.OriginalPrice, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "[cartRepository] CreateItem", "execContext", err)
		return err
	}

	return nil
}

func (r *cartRepository) UpdateItem(ctx context.Context, item domain.CartItem, tx *sql.Tx) error {
	query := `UPDATE cart_items SET quantity = $1, price = $2, original_price = $3, updated_at = $4 WHERE id = $5`

	res, err := runner(r.conn, tx).ExecContext(ctx, query, item.Quantity, item.Price, item.OriginalPrice,
		item.UpdatedAt, item.ID)
	if err != nil {
		slog.ErrorContext(ctx, "[cartRepository] UpdateItem", "execContext", err)
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[cartRepository] UpdateItem", "rowsAffected", err)
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrCartItemNotFound
	}

	return nil
}

func (r *cartRepository) DeleteItem(ctx context.Context, itemID uuid.UUID, tx *sql.Tx) error {
	query := `DELETE FROM cart_items WHERE id = $1`

	_, err := runner(r.conn, tx).ExecContext(ctx, query, itemID)
	if err != nil {
		slog.ErrorContext(ctx, "[cartRepository] DeleteItem", "execContext", err)
		return err
	}

	return nil
}

func (r *cartRepository) DeleteItems(ctx context.Context, cartID uuid.UUID, tx *sql.Tx) error {
	query := `DELETE FROM cart_items WHERE cart_id = $1`

	_, err := runner(r.conn, tx).ExecContext(ctx, query, cartID)
	if err != nil {
		slog.ErrorContext(ctx, "[cartRepository] DeleteItems", "execContext", err)
		return err
	}

	return nil
}

func (r *cartRepository) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	return withTransaction(ctx, r.conn, "cartRepository", fn)
}
