package model

import "time"

// Role is the scope claim embedded in access tokens.  Exactly two roles
// exist: the single bootstrapped superadmin and self-service members.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleMember     Role = "member"
)

// Valid reports whether r is one of the recognized roles.
func (r Role) Valid() bool {
	return r == RoleSuperadmin || r == RoleMember
}

// User represents a row in the `users` table.  IDs are allocated from a
// dedicated sequence table so an id can be minted before the row exists
// (magic-link invites embed the id in the code before signup completes).
type User struct {
	ID             uint64    // primary key, assigned on creation, immutable
	Email          string    // unique, compared as provided
	HashedPassword string    // bcrypt hash, or a random placeholder for invited users
	Role           Role      // superadmin or member (default member)
	CreatedAt      time.Time // set once at creation
	PictureBKey    string    // bucket key of the profile picture; empty = NULL
}

// Constraint bounds a single user field.  The table is shared by the entity
// definition and the request-binding layer so both enforce the same limits
// without reflection.
type Constraint struct {
	MinLen int
	MaxLen int
}

// FieldConstraints maps column names to their validation bounds.
var FieldConstraints = map[string]Constraint{
	"hashed_password": {MinLen: 4, MaxLen: 60},
	"picture_bkey":    {MinLen: 1, MaxLen: 255},
	"email":           {MinLen: 3, MaxLen: 255},
}

// CheckLen validates a value against the named field's constraint.  Unknown
// fields pass so the table stays the single source of truth for bounds.
func CheckLen(field, value string) bool {
	c, ok := FieldConstraints[field]
	if !ok {
		return true
	}
	return len(value) >= c.MinLen && (c.MaxLen == 0 || len(value) <= c.MaxLen)
}
