package shared

import "errors"

var (
	// ErrValidation indicates malformed or missing input the caller can correct.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness or version collision.
	ErrConflict = errors.New("conflict")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the principal may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a missing or invalid principal.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTooManyAttempts is returned while a caller is locked out of login.
	ErrTooManyAttempts = errors.New("too many failed attempts")
)
