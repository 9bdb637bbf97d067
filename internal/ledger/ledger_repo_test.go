package ledger

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newGormOverMock(t *testing.T) (*gorm.DB, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	assert.NoError(t, err)
	return gormDB, db, mock
}

func TestWithTxRunsStatementsOnTransaction(t *testing.T) {
	gormDB, db, mock := newGormOverMock(t)
	defer db.Close()

	mock.ExpectBegin()
	tx, err := db.Begin()
	assert.NoError(t, err)

	bound := NewRepository(gormDB).WithTx(tx).(*repository)
	assert.Same(t, tx, bound.db.Statement.ConnPool,
		"bound repository must execute on the caller's transaction")

	// The base repository keeps using the pool; only the bound copy joins
	// the transaction.
	base := NewRepository(gormDB).(*repository)
	assert.NotSame(t, tx, base.db.Statement.ConnPool)

	mock.ExpectRollback()
	assert.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}
