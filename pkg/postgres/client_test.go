package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInTxCommitsAndRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	c := FromDB(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM chunks").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()
	err = c.InTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM chunks")
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = c.InTx(context.Background(), func(tx *sql.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnPanic(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	c := FromDB(db)

	mock.ExpectBegin()
	mock.ExpectRollback()
	assert.PanicsWithValue(t, "nil chunk", func() {
		_ = c.InTx(context.Background(), func(*sql.Tx) error { panic("nil chunk") })
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxReportsRollbackFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("duplicate uid")
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection lost"))
	err = FromDB(db).InTx(context.Background(), func(*sql.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "connection lost")
}
