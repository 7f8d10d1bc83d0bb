package postgres

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	ierr "github.com/paylinks/pricechange/internal/errors"
	"github.com/paylinks/pricechange/internal/logger"
	"github.com/paylinks/pricechange/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewFromSQLX(sqlx.NewDb(db, "postgres"), logger.NewNopLogger()), mock
}

func TestWithTxCommits(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE subscriptions")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		_, ok := GetTx(ctx)
		assert.True(t, ok)
		_, err := db.ExecContext(ctx, "UPDATE subscriptions SET amount = 1")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNestedWithTxUsesSavepoints(t *testing.T) {
	db, mock := newMockDB(t)
	boom := errors.New("conflict")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT sp_1")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("ROLLBACK TO SAVEPOINT sp_1")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT sp_1")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("RELEASE SAVEPOINT sp_1")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		nestedErr := db.WithTx(ctx, func(ctx context.Context) error {
			return boom
		})
		assert.ErrorIs(t, nestedErr, boom)

		return db.WithTx(ctx, func(ctx context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCarriesSweepID(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	ctx := types.SetSweepID(context.Background(), "sweep_1")
	err := db.WithTx(ctx, func(ctx context.Context) error {
		tx, ok := GetTx(ctx)
		require.True(t, ok)
		assert.Equal(t, "sweep_1", tx.sweepID)
		assert.True(t, strings.HasPrefix(tx.ID, types.UUID_PREFIX_TRANSACTION+"_"))
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginFailureIsDatabaseError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	called := false
	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, ierr.IsDatabase(err))
	assert.True(t, ierr.IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictInsideTxIsReturnedUnchanged(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	lost := ierr.NewError("subscription already has a pending price change").Mark(ierr.ErrConflict)
	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		return lost
	})
	assert.True(t, ierr.IsConflict(err))
	assert.False(t, ierr.IsDatabase(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
