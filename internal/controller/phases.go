package controller

import (
	"context"
	"fmt"
	"slices"

	"github.com/JaimeStill/pairwise/internal/checkpoint"
	"github.com/JaimeStill/pairwise/internal/pairs"
	"github.com/JaimeStill/pairwise/internal/predicate"
	"github.com/JaimeStill/pairwise/internal/records"
)

// DecomposeNode splits the input into units. It is a no-op when the state
// already holds units.
func DecomposeNode(rt *Runtime) Node {
	return func(ctx context.Context, r *Run) (Signal, error) {
		s := r.State
		if len(s.Units) > 0 {
			return Advance, nil
		}

		units, err := r.Options.Decomposer.Split(r.Problem.Input)
		if err != nil {
			return Advance, fmt.Errorf("decompose: %w", err)
		}

		s.Units = units
		s.UnitsPending = make([]string, 0, len(units))
		for _, u := range units {
			if _, done := s.Labels[u.ID]; !done {
				s.UnitsPending = append(s.UnitsPending, u.ID)
			}
		}
		r.profiles = nil

		rt.Logger.InfoContext(ctx, "decompose node complete",
			"units", len(units),
			"pending", len(s.UnitsPending),
		)
		return Advance, nil
	}
}

// ClassifyNode dispatches one batch of pending units per iteration. It
// repeats while units remain pending and fails with ErrCoverage when the
// classified share ends below the threshold.
func ClassifyNode(rt *Runtime) Node {
	return func(ctx context.Context, r *Run) (Signal, error) {
		s := r.State
		if !s.Pending() {
			return Advance, checkCoverage(r)
		}

		batch := s.UnitsPending
		if size := r.Options.BatchSize; size > 0 && size < len(batch) {
			batch = batch[:size]
		}

		byID := make(map[string]records.Unit, len(s.Units))
		for _, u := range s.Units {
			byID[u.ID] = u
		}
		units := make([]records.Unit, len(batch))
		for i, id := range batch {
			units[i] = byID[id]
		}

		results := rt.Dispatcher.Dispatch(ctx, units)

		if s.Failures == nil {
			s.Failures = make(map[string]string)
		}
		for id, res := range results {
			if res.Err == nil {
				s.Labels[id] = res.Label
			}
		}
		for _, id := range results.Failed() {
			s.Failures[id] = results[id].Err.Error()
		}
		interrupted := results.Interrupted()

		resolved := make(map[string]struct{}, len(results))
		for id := range results {
			if !slices.Contains(interrupted, id) {
				resolved[id] = struct{}{}
			}
		}
		s.UnitsPending = slices.DeleteFunc(s.UnitsPending, func(id string) bool {
			_, ok := resolved[id]
			return ok
		})
		if len(s.Failures) == 0 {
			s.Failures = nil
		}
		r.profiles = nil

		rt.Logger.InfoContext(ctx, "classify node complete",
			"batch", len(batch),
			"labelled", len(s.Labels),
			"failed", len(s.Failures),
			"pending", len(s.UnitsPending),
		)

		if s.Pending() {
			return Repeat, nil
		}
		return Advance, checkCoverage(r)
	}
}

func checkCoverage(r *Run) error {
	cov := coverage(r.State)
	threshold := r.Options.CoverageThreshold
	if cov < threshold {
		return fmt.Errorf("%w: %.4f < %.4f (%d of %d units failed)",
			ErrCoverage, cov, threshold, len(r.State.Failures), len(r.State.Units))
	}
	return nil
}

// EvaluateNode builds entity profiles from the labels and records the
// qualifying entities of each role.
func EvaluateNode(rt *Runtime) Node {
	return func(ctx context.Context, r *Run) (Signal, error) {
		s := r.State
		profiles := r.Profiles()

		digest, err := profiles.Digest()
		if err != nil {
			return Advance, fmt.Errorf("evaluate: %w", err)
		}

		roles := r.Problem.Task.Qualifying(profiles)
		s.Qualifying = roles.A
		s.Partners = roles.B
		s.ProfilesDigest = digest

		rt.Logger.InfoContext(ctx, "evaluate node complete",
			"entities", len(profiles),
			"qualifying", len(roles.A),
			"partners", len(roles.B),
		)
		return Advance, nil
	}
}

// EnumerateNode produces the pair set from the qualifying entities.
func EnumerateNode(rt *Runtime) Node {
	return func(ctx context.Context, r *Run) (Signal, error) {
		s := r.State
		s.Pairs = enumerate(&r.Problem.Task, r.Profiles(), predicate.Roles{
			A:         s.Qualifying,
			B:         s.Partners,
			Symmetric: r.Problem.Task.Symmetric(),
		})

		rt.Logger.InfoContext(ctx, "enumerate node complete", "pairs", len(s.Pairs))
		return Advance, nil
	}
}

// SynthesizeNode assembles the answer and completes the run. When a
// narrative is requested the oracle summarizes the answer; a narrative
// failure does not fail the run.
func SynthesizeNode(rt *Runtime) Node {
	return func(ctx context.Context, r *Run) (Signal, error) {
		s := r.State
		answer := buildAnswer(r, s.Pairs, false)

		if r.Options.Narrative && rt.Oracle != nil {
			text, err := rt.Oracle.Complete(ctx, narrativePrompt(&r.Problem.Task), answer.Summary)
			if err != nil {
				rt.Logger.WarnContext(ctx, "narrative failed", "error", err)
			} else {
				answer.Narrative = text
			}
		}

		s.Answer = answer
		rt.Logger.InfoContext(ctx, "synthesize node complete",
			"pairs", len(answer.Pairs),
			"coverage", answer.Coverage,
		)
		return Complete, nil
	}
}

func narrativePrompt(t *predicate.Task) string {
	return fmt.Sprintf("Summarize the result of this query in two sentences.\nQuery: %s", t.Query)
}

func enumerate(t *predicate.Task, profiles records.Profiles, roles predicate.Roles) pairs.Set {
	if roles.Symmetric {
		return pairs.Enumerate(roles.A, t.Pairwise(profiles, roles.A))
	}
	return pairs.EnumerateCross(roles.A, roles.B, t.Pairwise(profiles, roles.Entities()))
}

// partialAnswer derives the best answer available from the labels
// classified so far.
func partialAnswer(r *Run) *checkpoint.Answer {
	s := r.State
	profiles := r.Profiles()
	roles := r.Problem.Task.Qualifying(profiles)
	s.Qualifying = roles.A
	s.Partners = roles.B
	s.Pairs = enumerate(&r.Problem.Task, profiles, roles)
	return buildAnswer(r, s.Pairs, true)
}

func buildAnswer(r *Run, found pairs.Set, partial bool) *checkpoint.Answer {
	s := r.State
	if found == nil {
		found = pairs.Set{}
	}

	labels := make(map[records.Label]int, len(records.Vocabulary))
	for _, l := range s.Labels {
		labels[l]++
	}

	return &checkpoint.Answer{
		TaskID:     r.Problem.Task.ID,
		Pairs:      found,
		Qualifying: slices.Clone(s.Qualifying),
		Partners:   slices.Clone(s.Partners),
		Coverage:   coverage(s),
		Partial:    partial,
		Summary: checkpoint.Summary{
			Units:      len(s.Units),
			Entities:   len(r.Profiles()),
			Labels:     labels,
			Failed:     len(s.Failures),
			Qualifying: len(s.Qualifying),
			Partners:   len(s.Partners),
			Pairs:      len(found),
		},
	}
}

func coverage(s *checkpoint.State) float64 {
	if len(s.Units) == 0 {
		return 1
	}
	return float64(len(s.Labels)) / float64(len(s.Units))
}

// orderPending returns pending ids deduplicated and in unit order.
func orderPending(units []records.Unit, pending []string) []string {
	want := make(map[string]struct{}, len(pending))
	for _, id := range pending {
		want[id] = struct{}{}
	}
	out := make([]string, 0, len(want))
	for _, u := range units {
		if _, ok := want[u.ID]; ok {
			out = append(out, u.ID)
		}
	}
	return out
}
