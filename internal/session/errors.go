package session

import (
	"errors"
	"fmt"
)

// ErrStorageReadOnly is returned by Stop when the shared filesystem stays
// read-only past the probe budget. The Active record is left intact so a
// later Stop can succeed.
var ErrStorageReadOnly = errors.New("session: storage is read-only")

// ValidationError reports a Create parameter outside policy bounds. The
// first violated rule is surfaced; nothing is mutated before validation
// passes.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("session: %s %s", e.Field, e.Message)
}
