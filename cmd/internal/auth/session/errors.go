package session

import "errors"

var (
	// ErrNotFound is returned for unknown, malformed and expired tokens alike.
	ErrNotFound = errors.New("session not found")

	// ErrConflict is returned by a Repository when the token hash is already stored.
	ErrConflict = errors.New("session token conflict")

	// ErrCollision is returned by Create after every attempt hit ErrConflict.
	ErrCollision = errors.New("session token collision retries exhausted")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)
