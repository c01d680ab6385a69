package circuitbreaker

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDatabaseWrapper_Operations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	wrapper := NewDatabaseWrapper(sqlx.NewDb(db, "sqlmock"), zaptest.NewLogger(t))
	ctx := context.Background()

	mock.ExpectQuery("SELECT status FROM research_qa_plans").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PROPOSED"))
	var status string
	require.NoError(t, wrapper.GetContext(ctx, &status, "SELECT status FROM research_qa_plans WHERE id = $1", "p1"))
	assert.Equal(t, "PROPOSED", status)

	mock.ExpectExec("UPDATE research_qa_plans").WillReturnResult(sqlmock.NewResult(0, 1))
	res, err := wrapper.ExecContext(ctx, "UPDATE research_qa_plans SET status = $1", "RUNNING")
	require.NoError(t, err)
	n, _ := res.RowsAffected()
	assert.EqualValues(t, 1, n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseWrapper_NoRowsDoesNotTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	wrapper := NewDatabaseWrapper(sqlx.NewDb(db, "sqlmock"), zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		mock.ExpectQuery("SELECT status").WillReturnError(sql.ErrNoRows)
		var status string
		err := wrapper.GetContext(ctx, &status, "SELECT status FROM research_qa_plans WHERE id = $1", "missing")
		assert.ErrorIs(t, err, sql.ErrNoRows)
	}
	assert.False(t, wrapper.IsOpen())
}

func TestDatabaseWrapper_Transaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	wrapper := NewDatabaseWrapper(sqlx.NewDb(db, "sqlmock"), zaptest.NewLogger(t))
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO source_excerpts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := wrapper.BeginTxx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "INSERT INTO source_excerpts (id) VALUES ($1)", "e1")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback())

	require.NoError(t, mock.ExpectationsWereMet())
}
