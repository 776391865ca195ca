package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/iliyamo/account-api/internal/auth"
	"github.com/iliyamo/account-api/internal/model"
	"github.com/iliyamo/account-api/internal/repository"
)

// User ids come from the user_ids sequence table rather than an
// AUTO_INCREMENT column on users, so the invite flow can mint an id and
// embed it in a magic-link code before the row is inserted.
const (
	createUserIDs = `CREATE TABLE IF NOT EXISTS user_ids (
        id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
        PRIMARY KEY (id)
    ) ENGINE=InnoDB`

	createUsers = `CREATE TABLE IF NOT EXISTS users (
        id BIGINT UNSIGNED NOT NULL,
        email VARCHAR(255) NOT NULL,
        hashed_password VARCHAR(60) NOT NULL,
        role ENUM('superadmin','member') NOT NULL DEFAULT 'member',
        created_at DATETIME NOT NULL,
        picture_bkey VARCHAR(255) NULL,
        PRIMARY KEY (id),
        UNIQUE KEY uq_users_email (email)
    ) ENGINE=InnoDB`
)

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{createUserIDs, createUsers} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Bootstrap seeds the single superadmin account on first start.  When the
// users table already has rows, the first row must belong to the configured
// superadmin email; anything else means the database was initialized for a
// different deployment and startup must fail rather than run against it.
func Bootstrap(ctx context.Context, db *sql.DB, email, password string, bcryptCost int) error {
	var firstEmail string
	err := db.QueryRowContext(ctx,
		"SELECT email FROM users ORDER BY id LIMIT 1").Scan(&firstEmail)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		log.Printf("users table empty, creating superadmin %s", email)
		hash, err := auth.HashPassword(password, bcryptCost)
		if err != nil {
			return err
		}
		return repository.NewUserRepo(db).Create(ctx, &model.User{
			Email:          email,
			HashedPassword: hash,
			Role:           model.RoleSuperadmin,
		})
	case err != nil:
		return err
	case firstEmail != email:
		return fmt.Errorf("users table was initialized with superadmin %q, configured %q", firstEmail, email)
	default:
		log.Printf("recovering existing users table")
		return nil
	}
}
