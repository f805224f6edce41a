package auth

import "errors"

var (
	// ErrNoTokenProvided means the Authorization header is missing or is not a
	// bearer credential.
	ErrNoTokenProvided = errors.New("no token provided")

	// ErrInvalidOrExpiredToken covers every verification failure, local or remote.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
)
