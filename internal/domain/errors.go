package domain

import "errors"

var (
	// ErrValidation is wrapped by every submission input error.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized is returned when an owner-scoped operation runs without
	// an authenticated owner.
	ErrUnauthorized = errors.New("unauthorized operation")
)
