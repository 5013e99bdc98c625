package store

import (
	"errors"
	"strings"
)

// ErrDuplicateQueued indicates an equivalent job is already queued, so the
// insert or requeue was dropped.
var ErrDuplicateQueued = errors.New("equivalent job already queued")

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}
