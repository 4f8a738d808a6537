package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx couples a pgx transaction with the pooled connection it runs on, so
// commit or rollback also releases the connection. One connection per
// transaction; the loader holds exactly one for its whole run.
type Tx struct {
	tx   pgx.Tx
	conn *pgxpool.Conn
}

// Tx exposes the underlying pgx transaction.
func (t Tx) Tx() pgx.Tx { return t.tx }

// Commit commits and releases the connection.
func (t Tx) Commit(ctx context.Context) error {
	defer t.conn.Release()
	return t.tx.Commit(ctx)
}

// Rollback rolls back and releases the connection. Calling it after a
// successful commit is a no-op, which makes `defer tx.Rollback(ctx)` safe.
func (t Tx) Rollback(ctx context.Context) error {
	defer t.conn.Release()
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
