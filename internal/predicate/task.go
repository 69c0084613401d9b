package predicate

import (
	"fmt"
	"slices"

	"github.com/JaimeStill/pairwise/internal/records"
)

// Kind identifies how a task's per-entity conditions are arranged.
type Kind string

const (
	// BothHaveAny requires both entities of a pair to have any of the categories.
	BothHaveAny Kind = "both_have_any"
	// BothHaveAnyWithDate adds a temporal clause that both entities must satisfy.
	BothHaveAnyWithDate Kind = "both_have_any_with_date"
	// Asymmetric requires one entity to satisfy UserA and the other UserB.
	Asymmetric Kind = "asymmetric"
)

// DateConstraint bounds every instance of Category to fall strictly before
// or strictly after a cutoff.
type DateConstraint struct {
	Category records.Label `yaml:"category" json:"category"`
	Before   *Date         `yaml:"before,omitempty" json:"before,omitempty"`
	After    *Date         `yaml:"after,omitempty" json:"after,omitempty"`
}

// Order is a cross-entity constraint: one entity of the pair must have
// First instances, the other must have Then instances, and every such First
// instance must occur before every such Then instance.
type Order struct {
	First records.Label `yaml:"first" json:"first"`
	Then  records.Label `yaml:"then" json:"then"`
}

// Task is a pair-finding query: which entity pairs satisfy the predicate.
type Task struct {
	ID             int             `yaml:"id" json:"id"`
	Query          string          `yaml:"query" json:"query"`
	Type           Kind            `yaml:"type" json:"type"`
	Categories     []records.Label `yaml:"categories,omitempty" json:"categories,omitempty"`
	DateConstraint *DateConstraint `yaml:"date_constraint,omitempty" json:"date_constraint,omitempty"`
	UserA          *Condition      `yaml:"user_a,omitempty" json:"user_a,omitempty"`
	UserB          *Condition      `yaml:"user_b,omitempty" json:"user_b,omitempty"`
	Order          *Order          `yaml:"order,omitempty" json:"order,omitempty"`
}

// Symmetric reports whether both entities of a pair play the same role.
func (t *Task) Symmetric() bool {
	return t.Type != Asymmetric
}

// Conditions returns the per-entity conditions of the task. For symmetric
// tasks a and b are identical.
func (t *Task) Conditions() (a, b Condition) {
	switch t.Type {
	case Asymmetric:
		if t.UserA != nil {
			a = *t.UserA
		}
		if t.UserB != nil {
			b = *t.UserB
		}
		return a, b
	default:
		a = Condition{HasAny: t.Categories}
		if dc := t.DateConstraint; dc != nil {
			if dc.Before != nil {
				a.Before = map[records.Label]Date{dc.Category: *dc.Before}
			}
			if dc.After != nil {
				a.After = map[records.Label]Date{dc.Category: *dc.After}
			}
		}
		return a, a
	}
}

// Validate checks the task definition. Every error wraps ErrInvalid.
func (t *Task) Validate() error {
	switch t.Type {
	case BothHaveAny, BothHaveAnyWithDate:
		if len(t.Categories) == 0 {
			return fmt.Errorf("%w: task %d: %s requires categories", ErrInvalid, t.ID, t.Type)
		}
		if t.UserA != nil || t.UserB != nil {
			return fmt.Errorf("%w: task %d: user_a/user_b only apply to %s tasks", ErrInvalid, t.ID, Asymmetric)
		}
		if t.Type == BothHaveAnyWithDate {
			if err := t.DateConstraint.validate(); err != nil {
				return fmt.Errorf("task %d: %w", t.ID, err)
			}
		} else if t.DateConstraint != nil {
			return fmt.Errorf("%w: task %d: date_constraint requires type %s", ErrInvalid, t.ID, BothHaveAnyWithDate)
		}
	case Asymmetric:
		if t.UserA == nil || t.UserB == nil {
			return fmt.Errorf("%w: task %d: asymmetric tasks require user_a and user_b", ErrInvalid, t.ID)
		}
		if len(t.Categories) > 0 || t.DateConstraint != nil {
			return fmt.Errorf("%w: task %d: categories and date_constraint do not apply to %s tasks", ErrInvalid, t.ID, Asymmetric)
		}
	default:
		return fmt.Errorf("%w: task %d: unknown type %q", ErrInvalid, t.ID, t.Type)
	}

	a, b := t.Conditions()
	if err := a.Validate(); err != nil {
		return fmt.Errorf("task %d: %w", t.ID, err)
	}
	if !t.Symmetric() {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("task %d: %w", t.ID, err)
		}
	}

	if o := t.Order; o != nil {
		if !o.First.Valid() || !o.Then.Valid() {
			return fmt.Errorf("%w: task %d: order references unknown label", ErrInvalid, t.ID)
		}
	}

	return nil
}

func (dc *DateConstraint) validate() error {
	if dc == nil {
		return fmt.Errorf("%w: missing date_constraint", ErrInvalid)
	}
	if !dc.Category.Valid() {
		return fmt.Errorf("%w: date_constraint: %w: %q", ErrInvalid, records.ErrUnknownLabel, dc.Category)
	}
	if (dc.Before == nil) == (dc.After == nil) {
		return fmt.Errorf("%w: date_constraint requires exactly one of before or after", ErrInvalid)
	}
	return nil
}

// Roles holds the qualifying entities of a task. Symmetric tasks populate
// only A.
type Roles struct {
	A         []string
	B         []string
	Symmetric bool
}

// Entities returns the union of both roles in canonical order.
func (r Roles) Entities() []string {
	all := slices.Concat(r.A, r.B)
	slices.SortFunc(all, records.CompareEntities)
	return slices.Compact(all)
}

// Qualifying evaluates the task's per-entity conditions against every
// profile exactly once.
func (t *Task) Qualifying(profiles records.Profiles) Roles {
	a, b := t.Conditions()
	roles := Roles{Symmetric: t.Symmetric()}

	for _, id := range profiles.Entities() {
		p := profiles[id]
		if Qualifies(p, a) {
			roles.A = append(roles.A, id)
		}
		if !roles.Symmetric && Qualifies(p, b) {
			roles.B = append(roles.B, id)
		}
	}

	return roles
}

// Pairwise returns the cross-entity check for the task, or nil when the
// task has no ordering constraint. Timestamp extrema for entities are
// computed once so that each check is constant time.
func (t *Task) Pairwise(profiles records.Profiles, entities []string) func(a, b string) bool {
	if t.Order == nil {
		return nil
	}

	type bounds struct {
		lastFirst int64
		hasFirst  bool
		firstThen int64
		hasThen   bool
	}

	extrema := make(map[string]bounds, len(entities))
	for _, id := range entities {
		p := profiles[id]
		var b bounds
		if ts, ok := p.Latest(t.Order.First); ok {
			b.lastFirst, b.hasFirst = ts.UnixNano(), true
		}
		if ts, ok := p.Earliest(t.Order.Then); ok {
			b.firstThen, b.hasThen = ts.UnixNano(), true
		}
		extrema[id] = b
	}

	precedes := func(x, y bounds) bool {
		return x.hasFirst && y.hasThen && x.lastFirst < y.firstThen
	}

	return func(a, b string) bool {
		ea, eb := extrema[a], extrema[b]
		return precedes(ea, eb) || precedes(eb, ea)
	}
}

// Matches reports whether the pair of profiles satisfies the full task
// predicate by direct evaluation. It is the reference used to derive
// ground truth and performs no precomputation.
func (t *Task) Matches(x, y records.EntityProfile) bool {
	a, b := t.Conditions()

	if t.Symmetric() {
		if !Qualifies(x, a) || !Qualifies(y, a) {
			return false
		}
	} else {
		forward := Qualifies(x, a) && Qualifies(y, b)
		backward := Qualifies(y, a) && Qualifies(x, b)
		if !forward && !backward {
			return false
		}
	}

	if t.Order == nil {
		return true
	}
	return orderHolds(x, y, t.Order) || orderHolds(y, x, t.Order)
}

func orderHolds(x, y records.EntityProfile, o *Order) bool {
	if len(x.Times[o.First]) == 0 || len(y.Times[o.Then]) == 0 {
		return false
	}
	for _, fx := range x.Times[o.First] {
		for _, ty := range y.Times[o.Then] {
			if !fx.Before(ty) {
				return false
			}
		}
	}
	return true
}
