package types

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a keyed record does not exist
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when an optimistic write finds a newer version
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate is returned when a unique key is already taken
	ErrDuplicate = errors.New("duplicate key")
)
