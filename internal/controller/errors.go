package controller

import (
	"errors"
	"fmt"

	"github.com/JaimeStill/pairwise/internal/checkpoint"
)

var (
	// ErrIterationExhausted indicates the run hit its iteration bound
	// before any phase asserted completion.
	ErrIterationExhausted = errors.New("iteration bound exhausted")
	// ErrCoverage indicates too few units were classified to trust the
	// answer. The state is preserved so the run can resume.
	ErrCoverage = errors.New("classification coverage below threshold")
	// ErrInvalidSequence indicates a phase sequence that cannot run.
	ErrInvalidSequence = errors.New("invalid phase sequence")
	// ErrInvalidOptions indicates run options outside their bounds.
	ErrInvalidOptions = errors.New("invalid run options")
	// ErrRunMismatch indicates a persisted run whose input or task differs
	// from the problem being resumed.
	ErrRunMismatch = errors.New("checkpoint belongs to a different problem")
)

// ExhaustedError reports a run stopped by its iteration bound. Answer is
// the best-effort partial answer, or nil when none could be derived.
type ExhaustedError struct {
	Iterations int
	Answer     *checkpoint.Answer
}

func (e *ExhaustedError) Error() string {
	if e.Answer == nil {
		return fmt.Sprintf("%s after %d iterations: no answer derivable", ErrIterationExhausted, e.Iterations)
	}
	return fmt.Sprintf("%s after %d iterations: partial answer with %d pairs", ErrIterationExhausted, e.Iterations, len(e.Answer.Pairs))
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrIterationExhausted
}
