package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// WithSerializableTx executes a function within a SERIALIZABLE transaction.
// lockWait bounds how long row locks taken inside fn may be waited on; an
// exceeded bound surfaces as a lock_not_available error from the server
// rather than an indefinite block.
func (db *DB) WithSerializableTx(ctx context.Context, lockWait time.Duration, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin serializable transaction: %w", err)
	}

	if lockWait > 0 {
		// SET LOCAL does not support bind parameters; the value is a
		// formatted integer, not caller input.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockWait.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
