package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"storefront-service/app/domain"

	"github.com/gofrs/uuid/v5"
)

type reservationRepository struct {
	conn *sql.DB
}

func NewReservationRepository(db *sql.DB) domain.ReservationRepository {
	return &reservationRepository{db}
}

const reservationColumns = `id, product_id, order_id, user_id, session_id, quantity, status, expires_at, metadata, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }) (domain.StockReservation, error) {
	var (
		res       domain.StockReservation
		orderID   uuid.NullUUID
		userID    sql.NullInt64
		sessionID sql.NullString
		metadata  []byte
	)

	err := row.Scan(&res.ID, &res.ProductID, &orderID, &userID, &sessionID, &res.Quantity,
		&res.Status, &res.ExpiresAt, &metadata, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return res, err
	}

	if orderID.Valid {
		res.OrderID = &orderID.UUID
	}
	if userID.Valid {
		res.UserID = &userID.Int64
	}
	if sessionID.Valid {
		res.SessionID = &sessionID.String
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &res.Metadata); err != nil {
			return res, err
		}
	}

	return res, nil
}

func (r *reservationRepository) Create(ctx context.Context, res *domain.StockReservation, tx *sql.Tx) error {
	if res.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		res.ID = id
	}

	metadata, err := json.Marshal(res.Metadata)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] Create", "json.Marshal", err)
		return err
	}

	query := `INSERT INTO stock_reservations (` + reservationColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = runner(r.conn, tx).ExecContext(ctx, query, res.ID, res.ProductID, res.OrderID, res.UserID,
		res.SessionID, res.Quantity, res.Status, res.ExpiresAt, metadata, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] Create", "execContext", err)
		return err
	}

	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id uuid.UUID, tx *sql.Tx) (domain.StockReservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stock_reservations WHERE id = $1`

	res, err := scanReservation(runner(r.conn, tx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, domain.ErrReservationNotFound
		}
		slog.ErrorContext(ctx, "[reservationRepository] GetByID", "queryRowContext", err)
		return res, err
	}

	return res, nil
}

func (r *reservationRepository) GetByOrderIDAndStatus(ctx context.Context, orderID uuid.UUID, status domain.ReservationStatus, tx *sql.Tx) ([]domain.StockReservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stock_reservations WHERE order_id = $1 `
	args := []any{orderID}

	if status != "" {
		query += `AND status = $2 `
		args = append(args, status)
	}
	query += `ORDER BY product_id, created_at`

	rows, err := runner(r.conn, tx).QueryContext(ctx, query, args...)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] GetByOrderIDAndStatus", "queryContext", err)
		return nil, err
	}
	defer rows.Close()

	var reservations []domain.StockReservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			slog.ErrorContext(ctx, "[reservationRepository] GetByOrderIDAndStatus", "scan", err)
			return nil, err
		}
		reservations = append(reservations, res)
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] GetByOrderIDAndStatus", "rowError", err)
		return nil, err
	}

	return reservations, nil
}

func (r *reservationRepository) SumActiveByProductID(ctx context.Context, productID uuid.UUID, now time.Time, tx *sql.Tx) (int64, error) {
	query := `SELECT COALESCE(SUM(quantity), 0) FROM stock_reservations
	WHERE product_id = $1 AND status = 'pending' AND expires_at > $2`

	var total int64
	err := runner(r.conn, tx).QueryRowContext(ctx, query, productID, now).Scan(&total)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] SumActiveByProductID", "queryRowContext", err)
		return 0, err
	}

	return total, nil
}

func (r *reservationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.ReservationStatus, now time.Time, tx *sql.Tx) (bool, error) {
	query := `UPDATE stock_reservations SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	res, err := runner(r.conn, tx).ExecContext(ctx, query, to, now, id, from)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] UpdateStatus", "execContext", err)
		return false, err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] UpdateStatus", "rowsAffected", err)
		return false, err
	}

	return rowsAffected == 1, nil
}

func (r *reservationRepository) CancelPendingByOrderID(ctx context.Context, orderID uuid.UUID, now time.Time, tx *sql.Tx) ([]uuid.UUID, error) {
	query := `UPDATE stock_reservations SET status = 'cancelled', updated_at = $1
	WHERE order_id = $2 AND status = 'pending'
	RETURNING product_id`

	return r.productIDs(ctx, "CancelPendingByOrderID", runner(r.conn, tx), query, now, orderID)
}

func (r *reservationRepository) ExpirePending(ctx context.Context, now time.Time, tx *sql.Tx) ([]uuid.UUID, error) {
	query := `UPDATE stock_reservations SET status = 'expired', updated_at = $1
	WHERE status = 'pending' AND expires_at <= $1
	RETURNING product_id`

	return r.productIDs(ctx, "ExpirePending", runner(r.conn, tx), query, now)
}

func (r *reservationRepository) DeleteInactiveBySessionIDs(ctx context.Context, sessionIDs []string, now time.Time, tx *sql.Tx) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	query := `DELETE FROM stock_reservations
	WHERE session_id = ANY($1) AND NOT (status = 'pending' AND expires_at > $2)`

	res, err := runner(r.conn, tx).ExecContext(ctx, query, sessionIDs, now)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] DeleteInactiveBySessionIDs", "execContext", err)
		return 0, err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] DeleteInactiveBySessionIDs", "rowsAffected", err)
		return 0, err
	}

	return rowsAffected, nil
}

// productIDs runs an UPDATE ... RETURNING product_id and collects one entry
// per affected reservation.
func (r *reservationRepository) productIDs(ctx context.Context, method string, q querier, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] "+method, "queryContext", err)
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			slog.ErrorContext(ctx, "[reservationRepository] "+method, "scan", err)
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "[reservationRepository] "+method, "rowError", err)
		return nil, err
	}

	return ids, nil
}
