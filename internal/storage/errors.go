package storage

import "errors"

// Sentinel errors shared across store implementations.
var (
	// ErrInvalidInput indicates a malformed or incomplete record.
	ErrInvalidInput = errors.New("invalid input")
)
