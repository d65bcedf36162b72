package db

import (
	"context"
	"fmt"

	pgx "github.com/jackc/pgx/v4"
)

// WithTx runs fn inside a transaction, rolling back on error or panic.
func WithTx(ctx context.Context, q Querier, fn func(pgx.Tx) error) (err error) {
	tx, err := q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
