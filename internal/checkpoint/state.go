// Package checkpoint persists controller state between iterations so that a
// run can resume after interruption without repeating completed work.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/JaimeStill/pairwise/internal/pairs"
	"github.com/JaimeStill/pairwise/internal/records"
)

// Version is the current state encoding version.
const Version = 1

// Phase names a step of the controller state machine.
type Phase string

const (
	PhaseDecompose  Phase = "decompose"
	PhaseClassify   Phase = "classify"
	PhaseEvaluate   Phase = "evaluate"
	PhaseEnumerate  Phase = "enumerate"
	PhaseSynthesize Phase = "synthesize"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// Phases lists the executable phases in their default order.
var Phases = []Phase{
	PhaseDecompose,
	PhaseClassify,
	PhaseEvaluate,
	PhaseEnumerate,
	PhaseSynthesize,
}

// Terminal reports whether no further phase runs from p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Known reports whether p is an executable or terminal phase.
func (p Phase) Known() bool {
	return p.Terminal() || slices.Contains(Phases, p)
}

// Summary describes the classified input behind an answer.
type Summary struct {
	Units      int                   `json:"units"`
	Entities   int                   `json:"entities"`
	Labels     map[records.Label]int `json:"labels"`
	Failed     int                   `json:"failed"`
	Qualifying int                   `json:"qualifying"`
	Partners   int                   `json:"partners,omitempty"`
	Pairs      int                   `json:"pairs"`
}

// Answer is the result of a run. Partial answers come from runs that hit
// their iteration bound before completing.
type Answer struct {
	TaskID     int       `json:"task_id"`
	Pairs      pairs.Set `json:"pairs"`
	Qualifying []string  `json:"qualifying"`
	Partners   []string  `json:"partners,omitempty"`
	Coverage   float64   `json:"coverage"`
	Partial    bool      `json:"partial"`
	Summary    Summary   `json:"summary"`
	Narrative  string    `json:"narrative,omitempty"`
}

// State is the persisted controller state.
type State struct {
	Version        int                      `json:"version"`
	RunID          string                   `json:"run_id"`
	InputDigest    string                   `json:"input_digest"`
	TaskID         int                      `json:"task_id"`
	Iteration      int                      `json:"iteration"`
	Phase          Phase                    `json:"phase"`
	Units          []records.Unit           `json:"units"`
	UnitsPending   []string                 `json:"units_pending"`
	Labels         map[string]records.Label `json:"labels"`
	Failures       map[string]string        `json:"failures,omitempty"`
	Qualifying     []string                 `json:"qualifying,omitempty"`
	Partners       []string                 `json:"partners,omitempty"`
	ProfilesDigest string                   `json:"profiles_digest,omitempty"`
	Pairs          pairs.Set                `json:"pairs,omitempty"`
	Done           bool                     `json:"done"`
	Answer         *Answer                  `json:"answer"`
	Error          string                   `json:"error,omitempty"`
	UpdatedAt      time.Time                `json:"updated_at"`
	Checksum       string                   `json:"checksum,omitempty"`
}

// New returns the initial state of a run.
func New(runID, inputDigest string, taskID int) *State {
	return &State{
		Version:     Version,
		RunID:       runID,
		InputDigest: inputDigest,
		TaskID:      taskID,
		Phase:       PhaseDecompose,
		Labels:      make(map[string]records.Label),
	}
}

// Pending reports whether any unit awaits classification.
func (s *State) Pending() bool {
	return len(s.UnitsPending) > 0
}

// Validate checks the structural invariants of a loaded state.
func (s *State) Validate() error {
	switch {
	case s.Version != Version:
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, s.Version)
	case s.RunID == "":
		return fmt.Errorf("%w: missing run_id", ErrCorrupt)
	case !s.Phase.Known():
		return fmt.Errorf("%w: unknown phase %q", ErrCorrupt, s.Phase)
	case s.Iteration < 0:
		return fmt.Errorf("%w: negative iteration", ErrCorrupt)
	case s.Done && s.Answer == nil:
		return fmt.Errorf("%w: done without answer", ErrCorrupt)
	case s.Done != (s.Phase == PhaseDone):
		return fmt.Errorf("%w: done=%v in phase %s", ErrCorrupt, s.Done, s.Phase)
	}

	ids := make(map[string]struct{}, len(s.Units))
	for _, u := range s.Units {
		ids[u.ID] = struct{}{}
	}
	for _, id := range s.UnitsPending {
		if _, ok := ids[id]; !ok {
			return fmt.Errorf("%w: pending unit %s not in units", ErrCorrupt, id)
		}
	}
	for id, label := range s.Labels {
		if _, ok := ids[id]; !ok {
			return fmt.Errorf("%w: labelled unit %s not in units", ErrCorrupt, id)
		}
		if !label.Valid() {
			return fmt.Errorf("%w: unit %s has label %q", ErrCorrupt, id, label)
		}
	}

	return nil
}

// Encode serializes s with an integrity checksum.
func Encode(s *State) ([]byte, error) {
	sum, err := checksum(s)
	if err != nil {
		return nil, err
	}

	out := *s
	out.Checksum = sum
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// Decode parses and verifies an encoded state. Any parse, checksum or
// invariant failure is reported as ErrCorrupt.
func Decode(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if s.Checksum != "" {
		want, err := checksum(&s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if want != s.Checksum {
			return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
		}
	}

	if s.Labels == nil {
		s.Labels = make(map[string]records.Label)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func checksum(s *State) (string, error) {
	clone := *s
	clone.Checksum = ""
	data, err := json.Marshal(&clone)
	if err != nil {
		return "", fmt.Errorf("checksum state: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
