package auth

import "errors"

var (
	// ErrMissingToken is returned when no bearer token was sent.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken covers malformed tokens, bad signatures and tokens
	// without an owner subject.
	ErrInvalidToken = errors.New("invalid bearer token")

	// ErrExpiredToken is returned for a token past its exp claim.
	ErrExpiredToken = errors.New("bearer token expired")

	// ErrTokenNotYetValid is returned for a token whose nbf or iat lies
	// beyond the allowed clock skew.
	ErrTokenNotYetValid = errors.New("bearer token not yet valid")

	// ErrEmptyOwner is returned when issuing a token for a blank owner.
	ErrEmptyOwner = errors.New("token owner cannot be empty")
)
