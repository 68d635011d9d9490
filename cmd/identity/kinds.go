package identity

import "errors"

// Kinds wrapped by OpError. Handlers map them to error bodies with errors.Is.
var (
	ErrInvalidInput = errors.New("identity: invalid input")
	ErrNotFound     = errors.New("identity: not found")
	ErrConflict     = errors.New("identity: conflict")
)
