package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentops/backend/internal/database"
)

func TestPool_AcquireBeginCommit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE publishing_jobs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	pool := database.NewPool(db)
	ctx := context.Background()

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)

	_, err = tx.ExecContext(ctx, "UPDATE publishing_jobs SET status = 'pending'")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Rollback(), sql.ErrTxDone)
	assert.NoError(t, conn.Release())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_BeginError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	conn, err := database.NewPool(db).Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Release()

	tx, err := conn.BeginTx(context.Background(), nil)
	assert.Nil(t, tx)
	assert.ErrorContains(t, err, "begin transaction")
	assert.ErrorContains(t, err, "too many connections")
}

func TestPool_AcquireCancelledContext(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn, err := database.NewPool(db).Acquire(ctx)
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOr(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assert.Same(t, db, database.Or(nil, db))

	var tx database.Querier = &sql.Tx{}
	assert.Same(t, tx, database.Or(tx, db))
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-1, database.DefaultListLimit},
		{0, database.DefaultListLimit},
		{1, 1},
		{database.MaxListLimit, database.MaxListLimit},
		{database.MaxListLimit + 1, database.MaxListLimit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, database.ClampLimit(tt.in), "limit %d", tt.in)
	}
}
