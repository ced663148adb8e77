package hierarchy

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every *NotFoundError via errors.Is.
	ErrNotFound = errors.New("hierarchy: not found")

	// ErrInvalid is returned when a payload fails shape validation.
	ErrInvalid = errors.New("hierarchy: invalid payload")

	// ErrIDNotAllowed is returned when a payload carries a caller-supplied id.
	// Ids are always assigned by the store.
	ErrIDNotAllowed = errors.New("hierarchy: id is assigned by the server")
)

// NotFoundError reports the first entity on a path that could not be resolved.
type NotFoundError struct {
	Kind Kind
	ID   string
}

func notFound(kind Kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) true for any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Message is the client-facing text, e.g. "User not found".
func (e *NotFoundError) Message() string {
	return e.Kind.Title() + " not found"
}
