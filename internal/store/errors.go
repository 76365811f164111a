package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a write would violate a uniqueness constraint.
	ErrDuplicate = errors.New("already exists")

	// ErrEmailExists is returned when another user already owns the email address.
	ErrEmailExists = fmt.Errorf("%w: email", ErrDuplicate)

	// ErrVersionConflict is returned when a save carries a stale document version.
	ErrVersionConflict = errors.New("version conflict")
)

const defaultListLimit = 100

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = defaultListLimit
	}
	return offset, limit
}
