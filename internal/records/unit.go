// Package records implements the input side of the pipeline: splitting raw
// input into classification units and regrouping classified units into
// per-entity profiles.
package records

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is an indivisible piece of input content. Units are immutable once
// created by a Decomposer.
type Unit struct {
	ID        string    `json:"id"`
	Entity    string    `json:"entity,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Text      string    `json:"text"`
}

// Fingerprint returns the content key used to deduplicate classification
// work. Identical text owned by different entities shares a fingerprint.
func (u Unit) Fingerprint() string {
	return Fingerprint(u.Text)
}

// Fingerprint returns the hex-encoded SHA-256 digest of text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CompareEntities is a total order over entity ids. Ids that parse as
// integers sort numerically before all other ids, which sort bytewise.
// Distinct strings never compare equal: "01" and "1" are ordered by bytes.
func CompareEntities(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		if c := cmp.Compare(ai, bi); c != 0 {
			return c
		}
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

func recordID(i int) string {
	return fmt.Sprintf("r%07d", i)
}

func windowID(i int) string {
	return fmt.Sprintf("w%07d", i)
}
