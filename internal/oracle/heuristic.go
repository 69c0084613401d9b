package oracle

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/JaimeStill/pairwise/internal/records"
)

var (
	abbreviationKeywords = []string{"stand for", "full form", "abbreviation", "acronym"}
	abbreviationPattern  = regexp.MustCompile(`[Ww]hat (?:does|is) [A-Z]{2,}\b`)

	numericPatterns = compile(
		`\bhow many\b`, `\bhow much\b`, `\bhow old\b`, `\bhow long\b`,
		`\bhow tall\b`, `\bhow high\b`, `\bhow deep\b`, `\bhow far\b`,
		`\bwhat year\b`, `\bwhen was\b`, `\bwhen did\b`, `\bwhat date\b`,
		`\bwhat percentage\b`, `\bwhat number\b`, `\bhow big\b`,
		`\bwhat age\b`, `\bwhat time\b`, `\bborn\b`,
	)

	locationPatterns = compile(
		`\bwhere\b`, `\bwhat city\b`, `\bwhat country\b`, `\bwhat state\b`,
		`\bwhat place\b`, `\bwhat location\b`, `\bin what\b.*\bcountry\b`,
		`\bin what\b.*\bstate\b`, `\bin what\b.*\bcity\b`, `\btake place\b`,
	)

	humanPatterns = compile(
		`^who\b`, `\bwho was\b`, `\bwho is\b`, `\bwho were\b`,
		`\bwho killed\b`, `\bwho invented\b`, `\bwho created\b`,
		`\bwho discovered\b`, `\bwho said\b`, `\bwhat person\b`,
		`\bname a\b.*\bperson\b`, `\bwhich person\b`, `\bwhich president\b`,
	)

	descriptionPatterns = compile(
		`^what is\b`, `^what are\b`, `^what was\b`, `^what were\b`,
		`^why\b`, `^how do\b`, `^how does\b`, `^how did\b`,
		`^how can\b`, `\bwhat does\b.*\bmean\b`, `\bwhat causes\b`,
		`\bdefine\b`, `\bexplain\b`,
	)
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Heuristic is a deterministic keyword classifier for offline runs. Rules
// are checked in order: abbreviation, numeric, location, human, description,
// then entity for remaining what/which questions.
type Heuristic struct{}

func (Heuristic) Classify(ctx context.Context, text string) (records.Label, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return HeuristicLabel(text), nil
}

// Complete echoes the first line of prompt. The heuristic oracle has no
// generative capability.
func (Heuristic) Complete(ctx context.Context, prompt string, input any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	first, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	if input == nil {
		return first, nil
	}
	return fmt.Sprintf("%s (%v)", first, input), nil
}

// HeuristicLabel classifies text by keyword rules.
func HeuristicLabel(text string) records.Label {
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, kw := range abbreviationKeywords {
		if strings.Contains(lower, kw) {
			return records.Abbreviation
		}
	}
	if abbreviationPattern.MatchString(text) {
		return records.Abbreviation
	}

	if matchAny(numericPatterns, lower) {
		return records.Numeric
	}
	if matchAny(locationPatterns, lower) {
		return records.Location
	}
	if matchAny(humanPatterns, lower) {
		return records.Human
	}
	if matchAny(descriptionPatterns, lower) {
		return records.Description
	}

	if strings.HasPrefix(lower, "what ") || strings.HasPrefix(lower, "which ") {
		return records.Entity
	}
	return records.Description
}
