package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"storefront-service/config"
	"storefront-service/pkg/ctxutil"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func NewPostgres(cfg config.DbConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DbName,
		cfg.SSLMode,
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return db, nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// runner picks the open transaction when there is one.
func runner(conn *sql.DB, tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return conn
}

// withTransaction joins the transaction already carried by ctx. Otherwise it
// opens one, commits it, and fires the after-commit hooks queued on it.
func withTransaction(ctx context.Context, conn *sql.DB, component string, fn func(context.Context, *sql.Tx) error) error {
	if state, ok := ctxutil.TxFromContext(ctx); ok && state.Tx != nil {
		return fn(ctx, state.Tx)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		slog.ErrorContext(ctx, "["+component+"] WithTransaction", "beginTx", err)
		return err
	}

	txCtx, state := ctxutil.WithTx(ctx, tx)
	if err := fn(txCtx, tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			slog.ErrorContext(ctx, "["+component+"] WithTransaction", "rollback", rollbackErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		slog.ErrorContext(ctx, "["+component+"] WithTransaction", "commit", err)
		return err
	}

	state.Committed()
	return nil
}
