// Package controller drives a run through its phases one iteration at a
// time, persisting state after every phase so that an interrupted run
// resumes where it stopped.
package controller

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JaimeStill/pairwise/internal/checkpoint"
	"github.com/JaimeStill/pairwise/internal/dispatch"
	"github.com/JaimeStill/pairwise/internal/oracle"
	"github.com/JaimeStill/pairwise/internal/predicate"
	"github.com/JaimeStill/pairwise/internal/records"
)

// DefaultCoverageThreshold is the minimum share of classified units
// accepted when no threshold is configured.
const DefaultCoverageThreshold = 0.95

// Problem is the input to a run.
type Problem struct {
	RunID string
	Input []byte
	Task  predicate.Task
}

// Digest identifies the problem's input and task.
func (p Problem) Digest() string {
	h := sha256.New()
	h.Write(p.Input)
	fmt.Fprintf(h, "\x00task:%d", p.Task.ID)
	return hex.EncodeToString(h.Sum(nil))
}

// Options bound a run.
type Options struct {
	MaxIterations     int
	Sequence          []checkpoint.Phase
	BatchSize         int
	IterationTimeout  time.Duration
	CoverageThreshold float64
	Decomposer        records.Decomposer
	Narrative         bool
}

// DefaultOptions returns options with the default sequence and coverage
// threshold.
func DefaultOptions(d records.Decomposer) Options {
	return Options{
		MaxIterations:     1000,
		Sequence:          DefaultSequence(),
		CoverageThreshold: DefaultCoverageThreshold,
		Decomposer:        d,
	}
}

// Validate checks the options and the phase sequence.
func (o *Options) Validate() error {
	if o.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be at least 1", ErrInvalidOptions)
	}
	if o.CoverageThreshold < 0 || o.CoverageThreshold > 1 {
		return fmt.Errorf("%w: coverage_threshold %v outside [0,1]", ErrInvalidOptions, o.CoverageThreshold)
	}
	if o.BatchSize < 0 {
		return fmt.Errorf("%w: negative batch_size", ErrInvalidOptions)
	}
	if o.Decomposer == nil {
		return fmt.Errorf("%w: decomposer required", ErrInvalidOptions)
	}
	return ValidateSequence(o.Sequence)
}

// Signal is a phase's verdict on how the run proceeds.
type Signal int

const (
	// Advance moves to the next phase of the sequence.
	Advance Signal = iota
	// Repeat runs the same phase again next iteration.
	Repeat
	// Complete finishes the run with an answer.
	Complete
)

func (s Signal) String() string {
	switch s {
	case Advance:
		return "advance"
	case Repeat:
		return "repeat"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Node executes one phase against the run.
type Node func(ctx context.Context, r *Run) (Signal, error)

// Runtime bundles the dependencies phase nodes require.
type Runtime struct {
	Store      checkpoint.Store
	Dispatcher *dispatch.Dispatcher
	Oracle     oracle.Oracle
	Logger     *slog.Logger
}

// Run is the mutable context of a single execution: the problem, its
// options and the state being advanced.
type Run struct {
	Problem Problem
	Options Options
	State   *checkpoint.State

	profiles records.Profiles
}

// Profiles returns the entity profiles for the current labels, rebuilding
// them when absent.
func (r *Run) Profiles() records.Profiles {
	if r.profiles == nil {
		r.profiles = records.GroupByEntity(r.State.Units, r.State.Labels)
	}
	return r.profiles
}

// Controller advances runs through their phase sequence.
type Controller struct {
	rt      *Runtime
	nodes   map[checkpoint.Phase]Node
	metrics *metrics
	logger  *slog.Logger
}

// New creates a Controller. reg may be nil.
func New(rt *Runtime, reg prometheus.Registerer) *Controller {
	c := &Controller{
		rt:      rt,
		metrics: newMetrics(reg),
		logger:  rt.Logger.With("system", "controller"),
	}
	c.nodes = map[checkpoint.Phase]Node{
		checkpoint.PhaseDecompose:  DecomposeNode(rt),
		checkpoint.PhaseClassify:   ClassifyNode(rt),
		checkpoint.PhaseEvaluate:   EvaluateNode(rt),
		checkpoint.PhaseEnumerate:  EnumerateNode(rt),
		checkpoint.PhaseSynthesize: SynthesizeNode(rt),
	}
	return c
}

// Run executes the problem until a phase completes it, the iteration
// bound is reached, or a phase fails. State is loaded from the store when
// the run id has been seen before and persisted after every phase.
func (c *Controller) Run(ctx context.Context, p Problem, opts Options) (*checkpoint.Answer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	state, err := c.resume(ctx, p)
	if err != nil {
		return nil, err
	}

	run := &Run{Problem: p, Options: opts, State: state}
	logger := c.logger.With("run", p.RunID, "task", p.Task.ID)

	for {
		if state.Done {
			c.metrics.runs.WithLabelValues("complete").Inc()
			logger.InfoContext(ctx, "run complete",
				"iterations", state.Iteration,
				"pairs", len(state.Answer.Pairs),
			)
			return state.Answer, nil
		}

		if state.Iteration >= opts.MaxIterations {
			return c.exhaust(ctx, run, logger)
		}

		phase := state.Phase
		node, ok := c.nodes[phase]
		if !ok {
			return nil, fmt.Errorf("%w: no node for phase %q", checkpoint.ErrCorrupt, phase)
		}

		iterCtx, cancel := ctx, context.CancelFunc(func() {})
		if opts.IterationTimeout > 0 {
			iterCtx, cancel = context.WithTimeout(ctx, opts.IterationTimeout)
		}

		start := time.Now()
		signal, err := node(iterCtx, run)
		cancel()
		elapsed := time.Since(start)

		state.Iteration++
		c.metrics.iterations.WithLabelValues(string(phase)).Inc()
		c.metrics.phaseSeconds.WithLabelValues(string(phase)).Observe(elapsed.Seconds())

		if ctx.Err() != nil {
			if saveErr := c.save(context.WithoutCancel(ctx), state); saveErr != nil {
				return nil, saveErr
			}
			logger.InfoContext(ctx, "run interrupted",
				"phase", phase,
				"iteration", state.Iteration,
			)
			return nil, fmt.Errorf("run %s interrupted in %s: %w", p.RunID, phase, ctx.Err())
		}

		if err != nil {
			return nil, c.fail(ctx, state, phase, err, logger)
		}

		switch signal {
		case Advance:
			state.Phase = next(opts.Sequence, phase)
		case Complete:
			state.Phase = checkpoint.PhaseDone
			state.Done = true
		}

		if err := c.save(ctx, state); err != nil {
			return nil, err
		}

		logger.InfoContext(ctx, "phase complete",
			"phase", phase,
			"signal", signal,
			"iteration", state.Iteration,
			"next", state.Phase,
			"pending", len(state.UnitsPending),
			"duration", elapsed,
		)
	}
}

func (c *Controller) resume(ctx context.Context, p Problem) (*checkpoint.State, error) {
	digest := p.Digest()

	state, err := c.rt.Store.Load(ctx, p.RunID)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		c.logger.InfoContext(ctx, "starting run", "run", p.RunID, "task", p.Task.ID)
		return checkpoint.New(p.RunID, digest, p.Task.ID), nil
	case err != nil:
		return nil, err
	}

	if state.InputDigest != digest || state.TaskID != p.Task.ID {
		return nil, fmt.Errorf("%w: run %s", ErrRunMismatch, p.RunID)
	}

	if state.Phase == checkpoint.PhaseFailed {
		requeue(state)
	}
	if !state.Done {
		state.Answer = nil
		state.Error = ""
	}

	c.logger.InfoContext(ctx, "resuming run",
		"run", p.RunID,
		"phase", state.Phase,
		"iteration", state.Iteration,
		"pending", len(state.UnitsPending),
		"labelled", len(state.Labels),
	)
	return state, nil
}

// requeue returns a failed state to a runnable phase. Failed units become
// pending again and classification resumes.
func requeue(s *checkpoint.State) {
	for id := range s.Failures {
		s.UnitsPending = append(s.UnitsPending, id)
	}
	s.UnitsPending = orderPending(s.Units, s.UnitsPending)
	s.Failures = nil
	s.Error = ""

	if len(s.Units) == 0 {
		s.Phase = checkpoint.PhaseDecompose
		return
	}
	s.Phase = checkpoint.PhaseClassify
}

func (c *Controller) fail(ctx context.Context, state *checkpoint.State, phase checkpoint.Phase, cause error, logger *slog.Logger) error {
	state.Phase = checkpoint.PhaseFailed
	state.Error = cause.Error()
	c.metrics.runs.WithLabelValues("failed").Inc()

	logger.ErrorContext(ctx, "phase failed",
		"phase", phase,
		"iteration", state.Iteration,
		"error", cause,
	)

	if err := c.save(ctx, state); err != nil {
		return errors.Join(cause, err)
	}
	return fmt.Errorf("%s: %w", phase, cause)
}

// exhaust persists the run where it stopped. The state stays resumable: a
// later Run with a larger bound continues from the saved phase. The partial
// answer is kept on the state for inspection only.
func (c *Controller) exhaust(ctx context.Context, run *Run, logger *slog.Logger) (*checkpoint.Answer, error) {
	state := run.State
	exhausted := &ExhaustedError{Iterations: state.Iteration}

	if len(state.Labels) > 0 {
		exhausted.Answer = partialAnswer(run)
		c.metrics.runs.WithLabelValues("partial").Inc()
	} else {
		c.metrics.runs.WithLabelValues("exhausted").Inc()
	}
	state.Answer = exhausted.Answer
	state.Error = exhausted.Error()

	if err := c.save(ctx, state); err != nil {
		return nil, errors.Join(exhausted, err)
	}

	logger.WarnContext(ctx, "iteration bound exhausted",
		"iterations", state.Iteration,
		"phase", state.Phase,
		"partial_answer", exhausted.Answer != nil,
	)
	return exhausted.Answer, exhausted
}

func (c *Controller) save(ctx context.Context, state *checkpoint.State) error {
	if err := c.rt.Store.Save(ctx, state); err != nil {
		return fmt.Errorf("persist state at iteration %d: %w", state.Iteration, err)
	}
	return nil
}
