package controller

import (
	"fmt"
	"slices"

	"github.com/JaimeStill/pairwise/internal/checkpoint"
)

// prerequisites lists, for each phase, the phase that must run earlier in
// the sequence.
var prerequisites = map[checkpoint.Phase]checkpoint.Phase{
	checkpoint.PhaseClassify:   checkpoint.PhaseDecompose,
	checkpoint.PhaseEvaluate:   checkpoint.PhaseClassify,
	checkpoint.PhaseEnumerate:  checkpoint.PhaseEvaluate,
	checkpoint.PhaseSynthesize: checkpoint.PhaseEnumerate,
}

// DefaultSequence returns the full phase order.
func DefaultSequence() []checkpoint.Phase {
	return slices.Clone(checkpoint.Phases)
}

// ValidateSequence checks that seq names only executable phases, starts
// with decompose, lists each phase once, and places every phase after its
// prerequisite.
func ValidateSequence(seq []checkpoint.Phase) error {
	if len(seq) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidSequence)
	}
	if seq[0] != checkpoint.PhaseDecompose {
		return fmt.Errorf("%w: must start with %s, got %s", ErrInvalidSequence, checkpoint.PhaseDecompose, seq[0])
	}

	seen := make(map[checkpoint.Phase]bool, len(seq))
	for _, p := range seq {
		if !slices.Contains(checkpoint.Phases, p) {
			return fmt.Errorf("%w: unknown phase %q", ErrInvalidSequence, p)
		}
		if seen[p] {
			return fmt.Errorf("%w: duplicate phase %s", ErrInvalidSequence, p)
		}
		if pre, ok := prerequisites[p]; ok && !seen[pre] {
			return fmt.Errorf("%w: %s requires %s earlier in the sequence", ErrInvalidSequence, p, pre)
		}
		seen[p] = true
	}

	return nil
}

// ParseSequence converts phase names into a validated sequence.
func ParseSequence(names []string) ([]checkpoint.Phase, error) {
	seq := make([]checkpoint.Phase, len(names))
	for i, n := range names {
		seq[i] = checkpoint.Phase(n)
	}
	if err := ValidateSequence(seq); err != nil {
		return nil, err
	}
	return seq, nil
}

func next(seq []checkpoint.Phase, current checkpoint.Phase) checkpoint.Phase {
	i := slices.Index(seq, current)
	if i < 0 || i == len(seq)-1 {
		return seq[0]
	}
	return seq[i+1]
}
