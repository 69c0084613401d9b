package checkpoint

import "errors"

var (
	// ErrCorrupt indicates a persisted state that cannot be parsed or
	// violates its invariants.
	ErrCorrupt = errors.New("checkpoint corrupt")
	// ErrNotFound indicates no state exists for the run.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrUnknownBackend indicates an unrecognized store backend.
	ErrUnknownBackend = errors.New("unknown checkpoint backend")
)
