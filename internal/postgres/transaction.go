package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/types"
)

// TxKey is the context key type for storing transaction
type TxKey struct{}

// Tx wraps sqlx.Tx. Nested WithTx calls share it and open savepoints, so one
// child of a bulk fan-out can be rolled back without losing its siblings.
type Tx struct {
	*sqlx.Tx
	savepointID int
	ID          string

	// sweepID and requestID are captured at begin so every log line of the
	// transaction can be traced back to the sweep or call that opened it
	sweepID   string
	requestID string
}

// GetTx retrieves a transaction from the context if it exists
func GetTx(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(TxKey{}).(*Tx)
	return tx, ok
}

func (tx *Tx) savepoint() string {
	return fmt.Sprintf("sp_%d", tx.savepointID)
}

func (tx *Tx) logFields(kv ...interface{}) []interface{} {
	fields := []interface{}{"tx_id", tx.ID}
	if tx.sweepID != "" {
		fields = append(fields, "sweep_id", tx.sweepID)
	}
	if tx.requestID != "" {
		fields = append(fields, "request_id", tx.requestID)
	}
	if tx.savepointID > 0 {
		fields = append(fields, "savepoint", tx.savepoint())
	}
	return append(fields, kv...)
}

func txError(err error, hint string, tx *Tx) error {
	details := map[string]any{}
	if tx != nil {
		details["tx_id"] = tx.ID
		if tx.sweepID != "" {
			details["sweep_id"] = tx.sweepID
		}
	}
	return ierr.WithError(err).
		WithHint(hint).
		WithReportableDetails(details).
		Mark(ierr.ErrDatabase)
}

// BeginTx starts a transaction, or a savepoint when ctx already carries one
func (db *DB) BeginTx(ctx context.Context) (context.Context, *Tx, error) {
	if tx, ok := GetTx(ctx); ok {
		tx.savepointID++
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+tx.savepoint()); err != nil {
			tx.savepointID--
			return ctx, nil, txError(err, "Failed to open savepoint", tx)
		}
		db.logger.Debugw("savepoint opened", tx.logFields()...)
		return ctx, tx, nil
	}

	sqlxTx, err := db.DB.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
		ReadOnly:  false,
	})
	if err != nil {
		return ctx, nil, txError(err, "Failed to begin transaction", nil)
	}

	tx := &Tx{
		Tx:        sqlxTx,
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRANSACTION),
		sweepID:   types.GetSweepID(ctx),
		requestID: types.GetRequestID(ctx),
	}
	db.logger.Debugw("transaction started", tx.logFields()...)

	return context.WithValue(ctx, TxKey{}, tx), tx, nil
}

// CommitTx releases the innermost savepoint, or commits when none is open
func (db *DB) CommitTx(ctx context.Context) error {
	tx, ok := GetTx(ctx)
	if !ok {
		return ierr.NewError("no transaction in context").
			WithHint("Commit called outside a transaction").
			Mark(ierr.ErrSystem)
	}

	if tx.savepointID > 0 {
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+tx.savepoint()); err != nil {
			return txError(err, "Failed to release savepoint", tx)
		}
		db.logger.Debugw("savepoint released", tx.logFields()...)
		tx.savepointID--
		return nil
	}

	if err := tx.Commit(); err != nil {
		return txError(err, "Failed to commit transaction", tx)
	}
	db.logger.Debugw("transaction committed", tx.logFields()...)
	return nil
}

// RollbackTx rolls back to the innermost savepoint, or the whole transaction when none is open
func (db *DB) RollbackTx(ctx context.Context) error {
	tx, ok := GetTx(ctx)
	if !ok {
		return ierr.NewError("no transaction in context").
			WithHint("Rollback called outside a transaction").
			Mark(ierr.ErrSystem)
	}

	if tx.savepointID > 0 {
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+tx.savepoint()); err != nil {
			return txError(err, "Failed to roll back to savepoint", tx)
		}
		db.logger.Debugw("rolled back to savepoint", tx.logFields()...)
		tx.savepointID--
		return nil
	}

	if err := tx.Rollback(); err != nil {
		return txError(err, "Failed to roll back transaction", tx)
	}
	db.logger.Debugw("transaction rolled back", tx.logFields()...)
	return nil
}

// WithTx runs fn in a transaction and rolls back when fn fails or panics.
// fn's error is returned unchanged so callers can still test it for a sentinel.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			db.logger.Errorw("panic in transaction", tx.logFields("panic", r)...)
			_ = db.RollbackTx(ctx)
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		// losing a guarded write is an expected outcome, not a database fault
		if ierr.IsConflict(err) || ierr.IsNotFound(err) || ierr.IsValidation(err) || ierr.IsInvalidOperation(err) {
			db.logger.Debugw("transaction aborted", tx.logFields("error", err)...)
		} else {
			db.logger.Errorw("transaction failed", tx.logFields("error", err)...)
		}
		if rbErr := db.RollbackTx(ctx); rbErr != nil {
			return ierr.WithError(rbErr).
				WithHintf("Rollback failed after: %v", err).
				Mark(ierr.ErrDatabase)
		}
		return err
	}

	return db.CommitTx(ctx)
}
