package records

import "errors"

var (
	// ErrUnknownLabel indicates a category outside the label vocabulary.
	ErrUnknownLabel = errors.New("unknown label")
	// ErrMalformedRecord indicates a record line whose fields could not be parsed.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrInvalidMode indicates an unrecognized decomposition mode.
	ErrInvalidMode = errors.New("invalid decomposition mode")
	// ErrInvalidUnitSize indicates a non-positive window size.
	ErrInvalidUnitSize = errors.New("max unit size must be positive")
)
