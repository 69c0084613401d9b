package controller_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JaimeStill/pairwise/internal/cache"
	"github.com/JaimeStill/pairwise/internal/checkpoint"
	"github.com/JaimeStill/pairwise/internal/controller"
	"github.com/JaimeStill/pairwise/internal/dataset"
	"github.com/JaimeStill/pairwise/internal/dispatch"
	"github.com/JaimeStill/pairwise/internal/oracle"
	"github.com/JaimeStill/pairwise/internal/predicate"
	"github.com/JaimeStill/pairwise/internal/records"
)

var discard = slog.New(slog.DiscardHandler)

// countingOracle wraps an oracle, counting Classify calls and running an
// optional hook before each one.
type countingOracle struct {
	oracle.Oracle
	calls  atomic.Int32
	before func(n int32, text string) error
}

func (o *countingOracle) Classify(ctx context.Context, text string) (records.Label, error) {
	n := o.calls.Add(1)
	if o.before != nil {
		if err := o.before(n, text); err != nil {
			return "", err
		}
	}
	return o.Oracle.Classify(ctx, text)
}

type fixture struct {
	ds      *dataset.Dataset
	entries []dataset.Entry
	problem controller.Problem
	store   *checkpoint.FileStore
	oracle  *countingOracle
}

func newFixture(t *testing.T, taskID int) *fixture {
	t.Helper()

	task, err := predicate.Lookup(taskID)
	if err != nil {
		t.Fatalf("Lookup(%d) error: %v", taskID, err)
	}
	ds, entries, err := dataset.Build(dataset.Config{Entries: 240, Users: 25, Seed: uint64(taskID)}, task)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	lookup, err := oracle.NewLookup(dataset.Labels(entries))
	if err != nil {
		t.Fatalf("NewLookup error: %v", err)
	}
	store, err := checkpoint.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}

	return &fixture{
		ds:      ds,
		entries: entries,
		problem: controller.Problem{
			RunID: fmt.Sprintf("run-task-%d", taskID),
			Input: dataset.Prompt(entries, task),
			Task:  task,
		},
		store:  store,
		oracle: &countingOracle{Oracle: lookup},
	}
}

// controller builds a controller with a fresh in-memory cache.
func (f *fixture) controller(concurrency int) *controller.Controller {
	d := dispatch.New(f.oracle, cache.New(nil, discard), dispatch.Config{
		Concurrency:    concurrency,
		CallTimeout:    time.Second,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, nil, discard)

	return controller.New(&controller.Runtime{
		Store:      f.store,
		Dispatcher: d,
		Oracle:     f.oracle,
		Logger:     discard,
	}, nil)
}

func options() controller.Options {
	return controller.DefaultOptions(records.Lines{})
}

func TestRunCompletes(t *testing.T) {
	for _, id := range []int{1, 4, 11} {
		t.Run(fmt.Sprintf("task %d", id), func(t *testing.T) {
			f := newFixture(t, id)

			answer, err := f.controller(4).Run(context.Background(), f.problem, options())
			if err != nil {
				t.Fatalf("Run error: %v", err)
			}

			if answer.Partial {
				t.Error("complete run reported a partial answer")
			}
			if answer.Coverage != 1 {
				t.Errorf("Coverage = %v, want 1", answer.Coverage)
			}
			if answer.Summary.Units != len(f.entries) {
				t.Errorf("Summary.Units = %d, want %d", answer.Summary.Units, len(f.entries))
			}
			if diff := cmp.Diff(f.ds.CorrectPairs.Sorted(), answer.Pairs.Sorted()); diff != "" {
				t.Errorf("pairs mismatch (-want +got):\n%s", diff)
			}

			state, err := f.store.Load(context.Background(), f.problem.RunID)
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			if !state.Done || state.Phase != checkpoint.PhaseDone {
				t.Errorf("persisted state done=%v phase=%s", state.Done, state.Phase)
			}
		})
	}
}

func TestRunReturnsStoredAnswer(t *testing.T) {
	f := newFixture(t, 1)

	first, err := f.controller(4).Run(context.Background(), f.problem, options())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	calls := f.oracle.calls.Load()

	second, err := f.controller(4).Run(context.Background(), f.problem, options())
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if got := f.oracle.calls.Load(); got != calls {
		t.Errorf("finished run called the oracle %d more times", got-calls)
	}
	if diff := cmp.Diff(first.Pairs.Sorted(), second.Pairs.Sorted()); diff != "" {
		t.Errorf("stored answer differs (-first +second):\n%s", diff)
	}
}

func TestRunResumesAfterInterrupt(t *testing.T) {
	f := newFixture(t, 11)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.oracle.before = func(n int32, _ string) error {
		if n == 15 {
			cancel()
		}
		return nil
	}

	opts := options()
	opts.BatchSize = 10

	_, err := f.controller(1).Run(ctx, f.problem, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}

	state, err := f.store.Load(context.Background(), f.problem.RunID)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if state.Phase != checkpoint.PhaseClassify {
		t.Fatalf("interrupted phase = %s, want classify", state.Phase)
	}
	if len(state.Labels) == 0 || !state.Pending() {
		t.Fatalf("labelled = %d, pending = %d; want progress on both", len(state.Labels), len(state.UnitsPending))
	}
	if len(state.Labels)+len(state.UnitsPending) != len(state.Units) {
		t.Errorf("labelled %d + pending %d != units %d", len(state.Labels), len(state.UnitsPending), len(state.Units))
	}

	byID := make(map[string]string, len(state.Units))
	for _, u := range state.Units {
		byID[u.ID] = u.Text
	}
	distinct := make(map[string]struct{})
	for _, id := range state.UnitsPending {
		distinct[byID[id]] = struct{}{}
	}

	f.oracle.before = nil
	f.oracle.calls.Store(0)

	answer, err := f.controller(4).Run(context.Background(), f.problem, opts)
	if err != nil {
		t.Fatalf("resumed Run error: %v", err)
	}
	if got := f.oracle.calls.Load(); int(got) != len(distinct) {
		t.Errorf("resumed run made %d oracle calls, want %d (distinct pending texts)", got, len(distinct))
	}
	if diff := cmp.Diff(f.ds.CorrectPairs.Sorted(), answer.Pairs.Sorted()); diff != "" {
		t.Errorf("resumed pairs mismatch (-want +got):\n%s", diff)
	}
}

func TestRunExhaustedWithPartialAnswer(t *testing.T) {
	f := newFixture(t, 1)

	opts := options()
	opts.MaxIterations = 3
	opts.BatchSize = 10

	answer, err := f.controller(2).Run(context.Background(), f.problem, opts)

	var exhausted *controller.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Run error = %v, want *ExhaustedError", err)
	}
	if !errors.Is(err, controller.ErrIterationExhausted) {
		t.Error("ExhaustedError does not match ErrIterationExhausted")
	}
	if exhausted.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", exhausted.Iterations)
	}
	if answer == nil || !answer.Partial {
		t.Fatalf("answer = %+v, want partial answer", answer)
	}
	if answer.Coverage >= 1 {
		t.Errorf("partial Coverage = %v, want < 1", answer.Coverage)
	}

	state, err := f.store.Load(context.Background(), f.problem.RunID)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if state.Done || state.Phase != checkpoint.PhaseClassify {
		t.Errorf("persisted state done=%v phase=%s, want resumable classify", state.Done, state.Phase)
	}
	if state.Answer == nil || !state.Answer.Partial {
		t.Errorf("persisted answer = %+v, want partial answer", state.Answer)
	}
}

func TestRunExhaustedResumesWithLargerBound(t *testing.T) {
	f := newFixture(t, 1)

	opts := options()
	opts.MaxIterations = 3
	opts.BatchSize = 10

	if _, err := f.controller(2).Run(context.Background(), f.problem, opts); !errors.Is(err, controller.ErrIterationExhausted) {
		t.Fatalf("first Run error = %v, want ErrIterationExhausted", err)
	}

	_, err := f.controller(2).Run(context.Background(), f.problem, opts)
	if !errors.Is(err, controller.ErrIterationExhausted) {
		t.Fatalf("rerun with the same bound: error = %v, want ErrIterationExhausted", err)
	}

	opts.MaxIterations = 1000
	answer, err := f.controller(2).Run(context.Background(), f.problem, opts)
	if err != nil {
		t.Fatalf("rerun with a larger bound: %v", err)
	}
	if answer.Partial {
		t.Error("completed run reported a partial answer")
	}
	if answer.Coverage != 1 {
		t.Errorf("Coverage = %v, want 1", answer.Coverage)
	}
	if diff := cmp.Diff(f.ds.CorrectPairs.Sorted(), answer.Pairs.Sorted()); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}

	state, err := f.store.Load(context.Background(), f.problem.RunID)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !state.Done || state.Error != "" {
		t.Errorf("persisted state done=%v error=%q", state.Done, state.Error)
	}
}

func TestRunExhaustedWithoutAnswer(t *testing.T) {
	f := newFixture(t, 1)

	opts := options()
	opts.MaxIterations = 1

	answer, err := f.controller(2).Run(context.Background(), f.problem, opts)
	if !errors.Is(err, controller.ErrIterationExhausted) {
		t.Fatalf("Run error = %v, want ErrIterationExhausted", err)
	}
	if answer != nil {
		t.Errorf("answer = %+v, want nil", answer)
	}

	state, err := f.store.Load(context.Background(), f.problem.RunID)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if state.Phase != checkpoint.PhaseClassify || state.Done {
		t.Errorf("persisted phase = %s done = %v, want resumable classify", state.Phase, state.Done)
	}
	if state.Error == "" {
		t.Error("persisted state has no error")
	}
}

func TestRunCoverageFailureResumes(t *testing.T) {
	f := newFixture(t, 4)
	broken := f.entries[0].Question

	var healthy atomic.Bool
	f.oracle.before = func(_ int32, text string) error {
		if text == broken && !healthy.Load() {
			return errors.New("oracle unavailable")
		}
		return nil
	}

	opts := options()
	opts.CoverageThreshold = 1
	c := f.controller(4)

	_, err := c.Run(context.Background(), f.problem, opts)
	if !errors.Is(err, controller.ErrCoverage) {
		t.Fatalf("Run error = %v, want ErrCoverage", err)
	}

	state, err := f.store.Load(context.Background(), f.problem.RunID)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if state.Phase != checkpoint.PhaseFailed {
		t.Errorf("persisted phase = %s, want failed", state.Phase)
	}
	if len(state.Failures) == 0 {
		t.Error("persisted state records no failures")
	}

	healthy.Store(true)

	answer, err := c.Run(context.Background(), f.problem, opts)
	if err != nil {
		t.Fatalf("resumed Run error: %v", err)
	}
	if answer.Coverage != 1 {
		t.Errorf("Coverage = %v, want 1", answer.Coverage)
	}
	if diff := cmp.Diff(f.ds.CorrectPairs.Sorted(), answer.Pairs.Sorted()); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}
}

func TestRunSequenceWraps(t *testing.T) {
	f := newFixture(t, 11)

	opts := options()
	opts.Sequence = []checkpoint.Phase{
		checkpoint.PhaseDecompose,
		checkpoint.PhaseClassify,
		checkpoint.PhaseEvaluate,
		checkpoint.PhaseEnumerate,
	}
	opts.MaxIterations = 10

	answer, err := f.controller(4).Run(context.Background(), f.problem, opts)
	if !errors.Is(err, controller.ErrIterationExhausted) {
		t.Fatalf("Run error = %v, want ErrIterationExhausted", err)
	}
	if answer == nil {
		t.Fatal("answer = nil, want partial answer")
	}
	if diff := cmp.Diff(f.ds.CorrectPairs.Sorted(), answer.Pairs.Sorted()); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}
}

func TestRunMismatch(t *testing.T) {
	f := newFixture(t, 1)

	if _, err := f.controller(4).Run(context.Background(), f.problem, options()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	changed := f.problem
	changed.Input = append([]byte("Date: Jan 01, 2023 || User: 99999 || Instance: Who is it?\n"), f.problem.Input...)

	_, err := f.controller(4).Run(context.Background(), changed, options())
	if !errors.Is(err, controller.ErrRunMismatch) {
		t.Errorf("Run error = %v, want ErrRunMismatch", err)
	}
}

func TestRunInvalidOptions(t *testing.T) {
	f := newFixture(t, 1)

	tests := map[string]func(o *controller.Options){
		"zero iterations": func(o *controller.Options) { o.MaxIterations = 0 },
		"threshold":       func(o *controller.Options) { o.CoverageThreshold = 1.5 },
		"batch size":      func(o *controller.Options) { o.BatchSize = -1 },
		"decomposer":      func(o *controller.Options) { o.Decomposer = nil },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			opts := options()
			mutate(&opts)
			_, err := f.controller(1).Run(context.Background(), f.problem, opts)
			if !errors.Is(err, controller.ErrInvalidOptions) {
				t.Errorf("Run error = %v, want ErrInvalidOptions", err)
			}
		})
	}
}

func TestValidateSequence(t *testing.T) {
	tests := []struct {
		name  string
		seq   []string
		valid bool
	}{
		{"default", []string{"decompose", "classify", "evaluate", "enumerate", "synthesize"}, true},
		{"prefix", []string{"decompose", "classify"}, true},
		{"empty", nil, false},
		{"missing decompose", []string{"classify", "evaluate"}, false},
		{"duplicate", []string{"decompose", "classify", "classify"}, false},
		{"terminal phase", []string{"decompose", "done"}, false},
		{"unknown", []string{"decompose", "rank"}, false},
		{"out of order", []string{"decompose", "evaluate", "classify"}, false},
		{"skipped prerequisite", []string{"decompose", "classify", "enumerate"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, err := controller.ParseSequence(tt.seq)
			if tt.valid {
				if err != nil {
					t.Fatalf("ParseSequence error: %v", err)
				}
				if len(seq) != len(tt.seq) {
					t.Errorf("len = %d, want %d", len(seq), len(tt.seq))
				}
				return
			}
			if !errors.Is(err, controller.ErrInvalidSequence) {
				t.Errorf("err = %v, want ErrInvalidSequence", err)
			}
		})
	}

	if diff := cmp.Diff(checkpoint.Phases, controller.DefaultSequence()); diff != "" {
		t.Errorf("DefaultSequence mismatch (-want +got):\n%s", diff)
	}
}
