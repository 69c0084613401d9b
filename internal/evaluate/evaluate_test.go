package evaluate_test

import (
	"math"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JaimeStill/pairwise/internal/evaluate"
	"github.com/JaimeStill/pairwise/internal/pairs"
	"github.com/JaimeStill/pairwise/internal/predicate"
	"github.com/JaimeStill/pairwise/internal/records"
)

func set(list ...[2]string) pairs.Set {
	s := make(pairs.Set)
	for _, p := range list {
		s.Add(p[0], p[1])
	}
	return s
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScore(t *testing.T) {
	tests := []struct {
		name             string
		predicted, truth pairs.Set
		p, r, f1         float64
	}{
		{"both empty", set(), set(), 0, 0, 0},
		{"empty prediction", set(), set([2]string{"1", "2"}), 0, 0, 0},
		{"empty truth", set([2]string{"1", "2"}), set(), 0, 0, 0},
		{
			"identical",
			set([2]string{"1", "2"}, [2]string{"3", "4"}),
			set([2]string{"1", "2"}, [2]string{"3", "4"}),
			1, 1, 1,
		},
		{
			"half overlap",
			set([2]string{"1", "2"}, [2]string{"1", "3"}),
			set([2]string{"1", "2"}, [2]string{"2", "3"}),
			0.5, 0.5, 0.5,
		},
		{
			"disjoint",
			set([2]string{"1", "2"}),
			set([2]string{"3", "4"}),
			0, 0, 0,
		},
		{
			"orientation ignored",
			set([2]string{"2", "1"}),
			set([2]string{"1", "2"}),
			1, 1, 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := evaluate.Score(tt.predicted, tt.truth)
			if !approx(m.Precision, tt.p) || !approx(m.Recall, tt.r) || !approx(m.F1, tt.f1) {
				t.Errorf("Score = %+v, want p=%v r=%v f1=%v", m, tt.p, tt.r, tt.f1)
			}
		})
	}
}

func TestEvaluateSamples(t *testing.T) {
	predicted := set([2]string{"1", "2"}, [2]string{"1", "3"})
	truth := set([2]string{"1", "2"}, [2]string{"2", "3"})

	report := evaluate.Evaluate(predicted, truth, evaluate.DefaultSamples)

	want := evaluate.Report{
		Metrics: evaluate.Metrics{
			Precision:      0.5,
			Recall:         0.5,
			F1:             0.5,
			TruePositives:  1,
			PredictedCount: 2,
			TruthCount:     2,
		},
		SampleCorrect:        []pairs.Pair{{A: "1", B: "2"}},
		SampleMissed:         []pairs.Pair{{A: "2", B: "3"}},
		SampleFalsePositives: []pairs.Pair{{A: "1", B: "3"}},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	many := make(pairs.Set)
	for i := range 20 {
		many.Add("0", strconv.Itoa(i+1))
	}
	if r := evaluate.Evaluate(many, set(), 5); len(r.SampleFalsePositives) != 5 {
		t.Errorf("samples = %d, want 5", len(r.SampleFalsePositives))
	}
}

func TestDeriveTruthMatchesEnumerator(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	start := time.Date(2022, time.October, 1, 0, 0, 0, 0, time.UTC)

	var units []records.Unit
	labels := make(map[string]records.Label)
	for i := range 600 {
		id := "u" + strconv.Itoa(i)
		units = append(units, records.Unit{
			ID:        id,
			Entity:    strconv.Itoa(rng.IntN(60) + 1),
			Timestamp: start.AddDate(0, 0, rng.IntN(270)),
		})
		labels[id] = records.Vocabulary[rng.IntN(len(records.Vocabulary))]
	}
	profiles := records.GroupByEntity(units, labels)

	tasks, err := predicate.Catalogue()
	if err != nil {
		t.Fatalf("Catalogue error: %v", err)
	}
	tasks = append(tasks, predicate.Task{
		ID:         100,
		Type:       predicate.BothHaveAny,
		Categories: []records.Label{records.Numeric, records.Location},
		Order:      &predicate.Order{First: records.Numeric, Then: records.Location},
	})

	for _, task := range tasks {
		t.Run(strconv.Itoa(task.ID), func(t *testing.T) {
			roles := task.Qualifying(profiles)
			check := task.Pairwise(profiles, roles.Entities())

			var got pairs.Set
			if roles.Symmetric {
				got = pairs.Enumerate(roles.A, check)
			} else {
				got = pairs.EnumerateCross(roles.A, roles.B, check)
			}

			truth := evaluate.DeriveTruth(profiles, task)
			if diff := cmp.Diff(truth.Sorted(), got.Sorted()); diff != "" {
				t.Errorf("enumerator disagrees with reference (-truth +got):\n%s", diff)
			}
		})
	}
}
