// Package pairs enumerates and serializes canonical unordered entity pairs.
package pairs

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/JaimeStill/pairwise/internal/records"
)

// Pair is an unordered pair of distinct entity ids stored in canonical
// order: A sorts before B.
type Pair struct {
	A string
	B string
}

// New returns the canonical pair for a and b. It reports false when a and b
// are the same entity.
func New(a, b string) (Pair, bool) {
	switch records.CompareEntities(a, b) {
	case 0:
		return Pair{}, false
	case 1:
		a, b = b, a
	}
	return Pair{A: a, B: b}, true
}

func (p Pair) String() string {
	return p.A + "," + p.B
}

// Compare orders pairs by their first then second entity.
func Compare(p, q Pair) int {
	if c := records.CompareEntities(p.A, q.A); c != 0 {
		return c
	}
	return records.CompareEntities(p.B, q.B)
}

func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.A, p.B})
}

// UnmarshalJSON accepts a two-element array of strings or numbers.
func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("%w: pair has %d elements", ErrMalformed, len(raw))
	}

	ids := make([]string, 2)
	for i, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			ids[i] = s
			continue
		}
		var n json.Number
		if err := json.Unmarshal(r, &n); err != nil {
			return fmt.Errorf("%w: %s", ErrMalformed, r)
		}
		ids[i] = n.String()
	}

	pair, ok := New(strings.TrimSpace(ids[0]), strings.TrimSpace(ids[1]))
	if !ok {
		return fmt.Errorf("%w: self pair %s", ErrMalformed, ids[0])
	}
	*p = pair
	return nil
}

// Set is a deduplicated collection of canonical pairs.
type Set map[Pair]struct{}

// Add inserts the canonical pair of a and b. Self pairs are dropped.
func (s Set) Add(a, b string) bool {
	p, ok := New(a, b)
	if !ok {
		return false
	}
	s[p] = struct{}{}
	return true
}

// Contains reports whether p is in the set.
func (s Set) Contains(p Pair) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the pairs in canonical order.
func (s Set) Sorted() []Pair {
	return slices.SortedFunc(maps.Keys(s), Compare)
}

// Intersect returns the pairs present in both sets.
func (s Set) Intersect(other Set) Set {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(Set)
	for p := range small {
		if large.Contains(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

// Difference returns the pairs in s that are not in other.
func (s Set) Difference(other Set) Set {
	out := make(Set)
	for p := range s {
		if !other.Contains(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	sorted := s.Sorted()
	if sorted == nil {
		sorted = []Pair{}
	}
	return json.Marshal(sorted)
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var list []Pair
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	out := make(Set, len(list))
	for _, p := range list {
		out[p] = struct{}{}
	}
	*s = out
	return nil
}

// FromSlice builds a set from pairs, canonicalizing each.
func FromSlice(list []Pair) Set {
	s := make(Set, len(list))
	for _, p := range list {
		s.Add(p.A, p.B)
	}
	return s
}

// Enumerate returns every unordered pair of distinct qualifying entities
// that satisfies pairwise. A nil pairwise accepts every pair, yielding
// k(k-1)/2 pairs for k distinct entities.
func Enumerate(qualifying []string, pairwise func(a, b string) bool) Set {
	ids := dedupe(qualifying)
	out := make(Set, len(ids)*(len(ids)-1)/2)

	for i, a := range ids {
		for _, b := range ids[i+1:] {
			if pairwise != nil && !pairwise(a, b) {
				continue
			}
			out[Pair{A: a, B: b}] = struct{}{}
		}
	}

	return out
}

// EnumerateCross returns the canonical pairs formed by one entity from a
// and a different entity from b that satisfy pairwise.
func EnumerateCross(a, b []string, pairwise func(x, y string) bool) Set {
	left, right := dedupe(a), dedupe(b)
	out := make(Set)

	for _, x := range left {
		for _, y := range right {
			p, ok := New(x, y)
			if !ok {
				continue
			}
			if pairwise != nil && !pairwise(p.A, p.B) {
				continue
			}
			out[p] = struct{}{}
		}
	}

	return out
}

func dedupe(ids []string) []string {
	out := slices.Clone(ids)
	slices.SortFunc(out, records.CompareEntities)
	return slices.Compact(out)
}
