// Package repository implements the data-access layer over MySQL.  Sentinel
// errors let handlers distinguish failure scenarios without inspecting SQL
// details: ErrNotFound maps to HTTP 404 and ErrEmailExists to 409.
package repository

import "errors"

// ErrNotFound is returned by strict lookups, updates and deletes when no
// row matches the given id or email.
var ErrNotFound = errors.New("user not found")

// ErrEmailExists is returned when an insert violates the unique index on
// users.email.  Concurrent creations of the same address race at the
// database: exactly one insert wins, the loser gets this error.
var ErrEmailExists = errors.New("email already exists")
