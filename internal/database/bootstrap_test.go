package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBootstrapSeedsSuperadmin(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT email FROM users ORDER BY id LIMIT 1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO user_ids () VALUES ()").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO users (id, email, hashed_password, role, created_at, picture_bkey) VALUES (?,?,?,?,?,NULL)").
		WithArgs(uint64(1), "root@x.com", sqlmock.AnyArg(), "superadmin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = Bootstrap(context.Background(), db, "root@x.com", "changeme", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBootstrapRecoversExistingTable(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT email FROM users ORDER BY id LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("root@x.com"))

	assert.NoError(t, Bootstrap(context.Background(), db, "root@x.com", "changeme", bcrypt.MinCost))
}

func TestBootstrapRejectsForeignSuperadmin(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT email FROM users ORDER BY id LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("someone@else.com"))

	err = Bootstrap(context.Background(), db, "root@x.com", "changeme", bcrypt.MinCost)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "someone@else.com")
}
