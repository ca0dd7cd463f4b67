// Package dbx abstracts the database handle so every repository works the
// same over a plain connection or an open transaction. Multi-record writes
// (bundle replacement, mutation application, id remapping, push application)
// run through WithTx so they land whole or not at all.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the query surface repositories are built on. Both *sql.DB and
// *sql.Tx satisfy it, so a repository constructed inside WithTx joins the
// surrounding transaction transparently.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with the transactional handle, and
// commits on success or rolls back on error/panic. Panics are rethrown.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
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

	err = fn(ctx, tx)
	return err
}
