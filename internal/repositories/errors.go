package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrInvalidTransition indicates a request status update that would move
	// a ledger entry backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
)
