package predicate

import "errors"

var (
	// ErrInvalid indicates a malformed predicate or task definition.
	ErrInvalid = errors.New("invalid predicate")
	// ErrTaskNotFound indicates a task id absent from the catalogue.
	ErrTaskNotFound = errors.New("task not found")
)
