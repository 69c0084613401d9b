package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/JaimeStill/pairwise/internal/checkpoint"
	"github.com/JaimeStill/pairwise/internal/controller"
	"github.com/JaimeStill/pairwise/internal/dataset"
	"github.com/JaimeStill/pairwise/internal/oracle"
	"github.com/JaimeStill/pairwise/internal/pairs"
	"github.com/JaimeStill/pairwise/internal/predicate"
	"github.com/JaimeStill/pairwise/internal/records"
)

// Process exit codes.
const (
	exitOK = iota
	exitRuntime
	exitUsage
	exitExhausted
	exitCorrupt
	exitPredicate
	exitCoverage
)

// usageError marks an error caused by the invocation rather than the run.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

var usageErrors = []error{
	fs.ErrNotExist,
	dataset.ErrMalformed,
	dataset.ErrInvalidConfig,
	pairs.ErrMalformed,
	records.ErrMalformedRecord,
	records.ErrInvalidMode,
	records.ErrInvalidUnitSize,
	predicate.ErrTaskNotFound,
	oracle.ErrUnknownKind,
	checkpoint.ErrNotFound,
	controller.ErrInvalidOptions,
	controller.ErrInvalidSequence,
	controller.ErrRunMismatch,
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	switch {
	case errors.Is(err, controller.ErrIterationExhausted):
		return exitExhausted
	case errors.Is(err, checkpoint.ErrCorrupt):
		return exitCorrupt
	case errors.Is(err, predicate.ErrInvalid):
		return exitPredicate
	case errors.Is(err, controller.ErrCoverage):
		return exitCoverage
	}

	var ue *usageError
	if errors.As(err, &ue) {
		return exitUsage
	}
	for _, target := range usageErrors {
		if errors.Is(err, target) {
			return exitUsage
		}
	}
	return exitRuntime
}
