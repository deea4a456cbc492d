package engine

import "errors"

var (
	// ErrValidation: malformed or missing input, nothing was written.
	ErrValidation = errors.New("invalid input")
	// ErrUnauthorized: the actor's role or ownership does not permit the
	// operation, nothing was written.
	ErrUnauthorized = errors.New("not allowed")
)
