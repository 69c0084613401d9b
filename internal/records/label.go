package records

import (
	"fmt"
	"strings"
)

// Label is one of the closed set of category tags assigned to a Unit.
type Label string

// TREC coarse question categories.
const (
	Description  Label = "DESC"
	Entity       Label = "ENTY"
	Human        Label = "HUM"
	Numeric      Label = "NUM"
	Location     Label = "LOC"
	Abbreviation Label = "ABBR"
)

// Vocabulary lists every valid Label in canonical order.
var Vocabulary = []Label{
	Description,
	Entity,
	Human,
	Numeric,
	Location,
	Abbreviation,
}

var labelNames = map[Label]string{
	Description:  "description and abstract concept",
	Entity:       "entity",
	Human:        "human being",
	Numeric:      "numeric value",
	Location:     "location",
	Abbreviation: "abbreviation",
}

var labelAliases = map[string]Label{
	"description":                  Description,
	"description/abstract concept": Description,
	"abstract concept":             Description,
	"human":                        Human,
	"numeric":                      Numeric,
	"number":                       Numeric,
	"abbr":                         Abbreviation,
}

// Name returns the long-form category name.
func (l Label) Name() string {
	return labelNames[l]
}

// Valid reports whether l belongs to the vocabulary.
func (l Label) Valid() bool {
	_, ok := labelNames[l]
	return ok
}

// ParseLabel normalizes a category tag or long-form name into a Label.
// Oracle responses commonly use either form.
func ParseLabel(s string) (Label, error) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `."'`)

	if l := Label(strings.ToUpper(s)); l.Valid() {
		return l, nil
	}

	lower := strings.ToLower(s)
	for l, name := range labelNames {
		if lower == name {
			return l, nil
		}
	}
	if l, ok := labelAliases[lower]; ok {
		return l, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownLabel, s)
}
