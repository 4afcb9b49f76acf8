package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUsername is returned by Create when the username is already taken.
var ErrDuplicateUsername = errors.New("duplicate username")
