package core

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrNameConflict is returned when a new image would reuse the name of an
	// existing one.
	ErrNameConflict = errors.New("a shared runnable by that name already exists")

	// ErrDuplicate is a unique-key violation detected by storage.
	ErrDuplicate = errors.New("already exists")

	// ErrAlreadyInProgress means the commit guard matched no row: another
	// commit holds the container.
	ErrAlreadyInProgress = errors.New("could not update")

	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
)
