package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReadOnly is used for multi-query reads that must see one snapshot, such as
// loading a quiz with its questions and options.
var ReadOnly = &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}

// Run executes fn against queries bound to a new transaction. The
// transaction commits when fn returns nil and rolls back otherwise. opts may
// be nil.
func Run[Q any](ctx context.Context, conn *sql.DB, opts *sql.TxOptions, bind func(*sql.Tx) Q, fn func(Q) error) error {
	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(bind(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
