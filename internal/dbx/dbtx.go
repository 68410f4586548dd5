// Package dbx provides the small DB abstractions shared by repositories:
// DBTX, satisfied by both *sql.DB and *sql.Tx, and WithTx, which runs a unit
// of work inside a transaction.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql used by repositories.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxFunc is a unit of work executed against a transactional handle.
type TxFunc func(ctx context.Context, tx DBTX) error

// WithTx begins a transaction, runs fn and commits when fn returns nil.
// Any error or panic rolls the transaction back; panics are rethrown.
//
// The transaction is detached from ctx cancellation: once started, a unit of
// work always ends in an explicit commit or rollback, even if the caller has
// gone away. Calls inside fn that wait on other systems must carry their own
// deadline, since ctx no longer ends with the caller.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) (err error) {
	ctx = context.WithoutCancel(ctx)

	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}
