package sqlutil

import (
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthchat/hearth/setup/config"
)

func TestWithTransactionCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() // nolint: errcheck

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM typingserver_typing_indicators").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err = WithTransaction(db, func(txn *sql.Tx) error {
		_, err := txn.Exec("DELETE FROM typingserver_typing_indicators")
		return err
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() // nolint: errcheck

	mock.ExpectBegin()
	mock.ExpectRollback()

	wantErr := errors.New("nope")
	err = WithTransaction(db, func(txn *sql.Tx) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionReportsCommitFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() // nolint: errcheck

	commitErr := errors.New("database is locked")
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(commitErr)

	err = WithTransaction(db, func(txn *sql.Tx) error {
		return nil
	})
	assert.ErrorIs(t, err, commitErr)
}

func TestStatementListPrepareFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() // nolint: errcheck

	mock.ExpectPrepare("SELECT 1").WillReturnError(errors.New("syntax error"))
	var stmt *sql.Stmt
	err = StatementList{
		{&stmt, "SELECT 1"},
	}.Prepare(db)
	assert.Error(t, err)
	assert.Nil(t, stmt)
}

func TestDummyWriterOpensTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() // nolint: errcheck

	mock.ExpectBegin()
	mock.ExpectCommit()
	var gotTxn *sql.Tx
	err = NewDummyWriter().Do(db, nil, func(txn *sql.Tx) error {
		gotTxn = txn
		return nil
	})
	assert.NoError(t, err)
	assert.NotNil(t, gotTxn)
	assert.NoError(t, mock.ExpectationsWereMet())

	// without a database the function runs bare
	err = NewDummyWriter().Do(nil, nil, func(txn *sql.Tx) error {
		assert.Nil(t, txn)
		return nil
	})
	assert.NoError(t, err)
}

func TestParseFileURI(t *testing.T) {
	tests := map[config.DataSource]string{
		"file:hearth.db":               "hearth.db",
		"file:///var/lib/hearth.db":    "/var/lib/hearth.db",
		"file::memory:":                ":memory:",
		"file:hearth.db?cache=shared":  "hearth.db?cache=shared",
	}
	for in, want := range tests {
		got, err := ParseFileURI(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseFileURI("postgres://localhost/hearth")
	assert.Error(t, err)
}
