// Package evaluate scores predicted pair sets against ground truth.
package evaluate

import (
	"github.com/JaimeStill/pairwise/internal/pairs"
	"github.com/JaimeStill/pairwise/internal/predicate"
	"github.com/JaimeStill/pairwise/internal/records"
)

// DefaultSamples is the number of example pairs reported per category.
const DefaultSamples = 5

// Metrics holds precision, recall and F1 together with the counts they
// were computed from.
type Metrics struct {
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
	TruePositives  int     `json:"true_positives"`
	PredictedCount int     `json:"predicted_count"`
	TruthCount     int     `json:"truth_count"`
}

// Report extends Metrics with sample pairs for inspection.
type Report struct {
	Metrics
	SampleCorrect        []pairs.Pair `json:"sample_correct"`
	SampleMissed         []pairs.Pair `json:"sample_missed"`
	SampleFalsePositives []pairs.Pair `json:"sample_false_positives"`
}

// Score computes precision, recall and F1. Precision is 0 when nothing was
// predicted, recall is 0 when the truth is empty, and F1 is 0 when both are 0.
func Score(predicted, truth pairs.Set) Metrics {
	tp := len(predicted.Intersect(truth))
	m := Metrics{
		TruePositives:  tp,
		PredictedCount: len(predicted),
		TruthCount:     len(truth),
	}

	if m.PredictedCount > 0 {
		m.Precision = float64(tp) / float64(m.PredictedCount)
	}
	if m.TruthCount > 0 {
		m.Recall = float64(tp) / float64(m.TruthCount)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}

	return m
}

// Evaluate scores predicted against truth and attaches up to samples pairs
// of each outcome in canonical order.
func Evaluate(predicted, truth pairs.Set, samples int) Report {
	return Report{
		Metrics:              Score(predicted, truth),
		SampleCorrect:        head(predicted.Intersect(truth), samples),
		SampleMissed:         head(truth.Difference(predicted), samples),
		SampleFalsePositives: head(predicted.Difference(truth), samples),
	}
}

func head(s pairs.Set, n int) []pairs.Pair {
	sorted := s.Sorted()
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	if sorted == nil {
		sorted = []pairs.Pair{}
	}
	return sorted
}

// DeriveTruth computes the reference answer for task by testing every
// pair of entities directly. It is quadratic in the entity count and
// independent of the enumerator, which makes it suitable for generating
// and checking ground truth.
func DeriveTruth(profiles records.Profiles, task predicate.Task) pairs.Set {
	ids := profiles.Entities()
	truth := make(pairs.Set)

	for i, a := range ids {
		for _, b := range ids[i+1:] {
			if task.Matches(profiles[a], profiles[b]) {
				truth.Add(a, b)
			}
		}
	}

	return truth
}
