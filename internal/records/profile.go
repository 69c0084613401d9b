package records

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// EntityProfile aggregates the classified units owned by one entity.
// Profiles are rebuilt from the full classified set on every grouping and
// never mutated incrementally.
type EntityProfile struct {
	Entity string                `json:"entity"`
	Labels []Label               `json:"labels"`
	Counts map[Label]int         `json:"counts"`
	Times  map[Label][]time.Time `json:"times"`
}

// Has reports whether the entity has at least one instance of label.
func (p EntityProfile) Has(label Label) bool {
	return p.Counts[label] > 0
}

// Count returns the number of instances of label.
func (p EntityProfile) Count(label Label) int {
	return p.Counts[label]
}

// Earliest returns the first timestamp recorded for label.
func (p EntityProfile) Earliest(label Label) (time.Time, bool) {
	ts := p.Times[label]
	if len(ts) == 0 {
		return time.Time{}, false
	}
	return ts[0], true
}

// Latest returns the last timestamp recorded for label.
func (p EntityProfile) Latest(label Label) (time.Time, bool) {
	ts := p.Times[label]
	if len(ts) == 0 {
		return time.Time{}, false
	}
	return ts[len(ts)-1], true
}

// Profiles maps entity ids to their profiles.
type Profiles map[string]EntityProfile

// Entities returns the entity ids in canonical order.
func (p Profiles) Entities() []string {
	return slices.SortedFunc(maps.Keys(p), CompareEntities)
}

// Digest returns a content hash of the profiles. Identical unit and label
// sets always produce the same digest.
func (p Profiles) Digest() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal profiles: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// GroupByEntity builds a profile for every entity that owns at least one
// labelled unit. labels maps unit ids to their assigned label; units
// without a label or without an entity are ignored.
func GroupByEntity(units []Unit, labels map[string]Label) Profiles {
	profiles := make(Profiles)

	for _, u := range units {
		if u.Entity == "" {
			continue
		}
		label, ok := labels[u.ID]
		if !ok {
			continue
		}

		p, exists := profiles[u.Entity]
		if !exists {
			p = EntityProfile{
				Entity: u.Entity,
				Counts: make(map[Label]int),
				Times:  make(map[Label][]time.Time),
			}
		}
		p.Counts[label]++
		if !u.Timestamp.IsZero() {
			p.Times[label] = append(p.Times[label], u.Timestamp)
		}
		profiles[u.Entity] = p
	}

	for id, p := range profiles {
		p.Labels = slices.Sorted(maps.Keys(p.Counts))
		for label, ts := range p.Times {
			slices.SortFunc(ts, func(a, b time.Time) int { return a.Compare(b) })
			p.Times[label] = ts
		}
		profiles[id] = p
	}

	return profiles
}
