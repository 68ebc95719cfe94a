package store

import "errors"

// Common errors returned by store operations.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, store.ErrNotFound) {
//	    // unknown uuid or user reference
//	}
var (
	// ErrNotFound is returned when an operation references a trial or
	// user that does not exist in the local store.
	ErrNotFound = errors.New("record not found")

	// ErrNoActiveUser is returned when an operation requires write
	// attribution but no profile is currently active.
	ErrNoActiveUser = errors.New("no active user set")
)
