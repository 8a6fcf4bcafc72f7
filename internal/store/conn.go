package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// connTransaction runs fn inside an explicit transaction on a single pinned
// connection. Unlike TransactionContext it gives fn the raw connection, which
// the DuckDB appender needs; appended rows become part of the transaction.
func (s *Store) connTransaction(ctx context.Context, fn func(*sql.Conn) error) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN TRANSACTION"); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	// Rollback must run even when ctx is the reason we are bailing out.
	rollback := func() error {
		_, rbErr := conn.ExecContext(context.Background(), "ROLLBACK")
		return rbErr
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err := fn(conn); err != nil {
		if rbErr := rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := ctx.Err(); err != nil {
		rollback()
		return fmt.Errorf("context cancelled before commit: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		rollback()
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
