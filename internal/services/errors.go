package services

import "errors"

var (
	// ErrUsernameTaken is returned by SignUp when the username already exists.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrInvalidCredentials covers both an unknown username and a wrong password.
	ErrInvalidCredentials = errors.New("invalid user or password")

	// ErrUnauthenticated is returned when a token cannot be resolved to a user.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when the subject does not own the resource.
	ErrForbidden = errors.New("forbidden")
)
