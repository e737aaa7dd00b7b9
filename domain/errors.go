package domain

import (
	"errors"
	"fmt"
)

// ErrNoteNotFound is returned when a note does not exist or belongs to
// another identity. Callers cannot tell the two apart.
var ErrNoteNotFound = errors.New("note not found")

// ValidationError reports a note field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
