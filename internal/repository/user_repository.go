package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/account-api/internal/model"
)

// Updatable columns.  The patch path exposes exactly two mutable fields;
// everything else on a user row is immutable after creation.
const (
	ColHashedPassword = "hashed_password"
	ColPictureBKey    = "picture_bkey"
)

// UserRepo provides CRUD over the users table plus id preallocation.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id, email, hashed_password, role, created_at, picture_bkey"

// NextID mints a fresh user id from the user_ids sequence table without
// inserting a user row.  The invite flow embeds this id in the magic-link
// code before the row exists; until signup completes the id dangles, which
// later lookups surface as ErrNotFound rather than a server error.
func (r *UserRepo) NextID(ctx context.Context) (uint64, error) {
	res, err := r.DB.ExecContext(ctx, "INSERT INTO user_ids () VALUES ()")
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Create inserts the user and fills in its id and creation time.  An id of
// zero means one is allocated here; a preallocated id (magic-link invite)
// is used as-is.  Duplicate emails surface as ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	if u.ID == 0 {
		id, err := r.NextID(ctx)
		if err != nil {
			return err
		}
		u.ID = id
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id, email, hashed_password, role, created_at, picture_bkey) VALUES (?,?,?,?,?,NULL)",
		u.ID, u.Email, u.HashedPassword, string(u.Role), u.CreatedAt)
	if err != nil {
		// MySQL 1062 = duplicate entry for the unique email index.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrEmailExists
		}
		return err
	}
	return nil
}

// Get fetches a user by id.  With strict set, a missing row is ErrNotFound;
// otherwise a zero User and nil error are returned by contract.
func (r *UserRepo) Get(ctx context.Context, id uint64, strict bool) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id), strict)
}

// GetByEmail fetches a user by email, compared exactly as provided.
func (r *UserRepo) GetByEmail(ctx context.Context, email string, strict bool) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email), strict)
}

func (r *UserRepo) scanOne(row *sql.Row, strict bool) (model.User, error) {
	var u model.User
	var bkey sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.Role, &u.CreatedAt, &bkey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if strict {
				return model.User{}, ErrNotFound
			}
			return model.User{}, nil
		}
		return model.User{}, err
	}
	u.PictureBKey = bkey.String
	return u, nil
}

// Update applies a field-level patch to a single user.  Only the
// hashed_password and picture_bkey columns are patchable; any other field
// name is a programming error.
func (r *UserRepo) Update(ctx context.Context, id uint64, field, value string) error {
	if field != ColHashedPassword && field != ColPictureBKey {
		return errors.New("column is not patchable: " + field)
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET "+field+"=? WHERE id=?", value, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// MySQL reports zero affected rows both for a missing id and for a
		// no-op write of the same value; only the former is an error.
		if _, err := r.Get(ctx, id, true); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the user row.  Deleting an absent id is ErrNotFound.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FetchAll returns every user ordered by insertion.  No pagination: the
// table is small by design and the listing endpoint is superadmin-only.
func (r *UserRepo) FetchAll(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		var bkey sql.NullString
		if err := rows.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.Role, &u.CreatedAt, &bkey); err != nil {
			return nil, err
		}
		u.PictureBKey = bkey.String
		users = append(users, u)
	}
	return users, rows.Err()
}
