package storage

import "errors"

// Errors shared by every store implementation. Callers match them with
// errors.Is; implementations wrap them with the offending key.
var (
	// ErrNotFound: no strategy or execution result with that key.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey: a strategy id or execution id already exists.
	// Execution history is append-only.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput: nil record, negative amount or malformed field.
	ErrInvalidInput = errors.New("invalid input")
)
