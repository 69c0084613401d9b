// Package predicate evaluates per-entity qualification conditions and the
// optional cross-entity ordering constraint of a pair-finding task.
package predicate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/JaimeStill/pairwise/internal/records"
)

// Date is a calendar cutoff used by temporal clauses. It decodes from the
// same date formats accepted in record lines.
type Date struct {
	time.Time
}

// NewDate returns the Date for the given calendar day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.Format("2006-01-02")), nil
}

func (d *Date) UnmarshalText(text []byte) error {
	t, err := records.ParseDate(string(text))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// MarshalJSON shadows the promoted time.Time encoding so dates round-trip
// in their calendar form.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format("2006-01-02"))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Condition is a conjunction of clauses over a single EntityProfile. Empty
// clauses are ignored.
type Condition struct {
	HasAny  []records.Label        `yaml:"has_any,omitempty" json:"has_any,omitempty"`
	HasAll  []records.Label        `yaml:"has_all,omitempty" json:"has_all,omitempty"`
	AtLeast map[records.Label]int  `yaml:"at_least,omitempty" json:"at_least,omitempty"`
	Exactly map[records.Label]int  `yaml:"exactly,omitempty" json:"exactly,omitempty"`
	Before  map[records.Label]Date `yaml:"before,omitempty" json:"before,omitempty"`
	After   map[records.Label]Date `yaml:"after,omitempty" json:"after,omitempty"`
}

// Qualifies reports whether profile satisfies every clause of cond.
//
// Category clauses are constant-time lookups against the profile counts.
// Temporal clauses require every instance of the label to fall strictly
// before (or after) the cutoff and hold vacuously when the entity has no
// instances of that label.
func Qualifies(profile records.EntityProfile, cond Condition) bool {
	if len(cond.HasAny) > 0 {
		found := false
		for _, l := range cond.HasAny {
			if profile.Has(l) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, l := range cond.HasAll {
		if !profile.Has(l) {
			return false
		}
	}

	for l, n := range cond.AtLeast {
		if profile.Count(l) < n {
			return false
		}
	}

	for l, n := range cond.Exactly {
		if profile.Count(l) != n {
			return false
		}
	}

	for l, cutoff := range cond.Before {
		for _, ts := range profile.Times[l] {
			if !ts.Before(cutoff.Time) {
				return false
			}
		}
	}

	for l, cutoff := range cond.After {
		for _, ts := range profile.Times[l] {
			if !ts.After(cutoff.Time) {
				return false
			}
		}
	}

	return true
}

// IsZero reports whether the condition has no clauses.
func (c Condition) IsZero() bool {
	return len(c.HasAny) == 0 &&
		len(c.HasAll) == 0 &&
		len(c.AtLeast) == 0 &&
		len(c.Exactly) == 0 &&
		len(c.Before) == 0 &&
		len(c.After) == 0
}

// Validate checks that the condition has at least one clause and that every
// clause references a known label with a sensible bound.
func (c Condition) Validate() error {
	if c.IsZero() {
		return fmt.Errorf("%w: condition has no clauses", ErrInvalid)
	}

	for _, l := range c.HasAny {
		if !l.Valid() {
			return fmt.Errorf("%w: has_any: %w: %q", ErrInvalid, records.ErrUnknownLabel, l)
		}
	}
	for _, l := range c.HasAll {
		if !l.Valid() {
			return fmt.Errorf("%w: has_all: %w: %q", ErrInvalid, records.ErrUnknownLabel, l)
		}
	}
	for l, n := range c.AtLeast {
		if !l.Valid() {
			return fmt.Errorf("%w: at_least: %w: %q", ErrInvalid, records.ErrUnknownLabel, l)
		}
		if n < 1 {
			return fmt.Errorf("%w: at_least %s must be positive, got %d", ErrInvalid, l, n)
		}
	}
	for l, n := range c.Exactly {
		if !l.Valid() {
			return fmt.Errorf("%w: exactly: %w: %q", ErrInvalid, records.ErrUnknownLabel, l)
		}
		if n < 0 {
			return fmt.Errorf("%w: exactly %s must not be negative, got %d", ErrInvalid, l, n)
		}
	}
	for l, d := range c.Before {
		if !l.Valid() {
			return fmt.Errorf("%w: before: %w: %q", ErrInvalid, records.ErrUnknownLabel, l)
		}
		if d.IsZero() {
			return fmt.Errorf("%w: before %s has no date", ErrInvalid, l)
		}
	}
	for l, d := range c.After {
		if !l.Valid() {
			return fmt.Errorf("%w: after: %w: %q", ErrInvalid, records.ErrUnknownLabel, l)
		}
		if d.IsZero() {
			return fmt.Errorf("%w: after %s has no date", ErrInvalid, l)
		}
	}

	return nil
}
