package local

import "errors"

var (
	// ErrNotFound is returned when a key has no entry
	ErrNotFound = errors.New("not found")

	// ErrInvalidKey is returned for keys that cannot map to a file path
	ErrInvalidKey = errors.New("invalid cache key")
)
