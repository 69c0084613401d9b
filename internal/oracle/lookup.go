package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/JaimeStill/pairwise/internal/records"
)

// Lookup replays known labels keyed by exact unit text. It is used to
// re-run the engine against labels captured from a previous run or a
// labelled dataset.
type Lookup struct {
	labels map[string]records.Label
}

// NewLookup returns a Lookup over labels. Labels are normalized; an entry
// outside the vocabulary is an error.
func NewLookup(labels map[string]string) (*Lookup, error) {
	out := make(map[string]records.Label, len(labels))
	for text, raw := range labels {
		l, err := records.ParseLabel(raw)
		if err != nil {
			return nil, fmt.Errorf("lookup entry %q: %w", text, err)
		}
		out[text] = l
	}
	return &Lookup{labels: out}, nil
}

// LoadLookup reads a JSON object mapping text to label from path.
func LoadLookup(path string) (*Lookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lookup: %w", err)
	}
	var labels map[string]string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("parse lookup: %w", err)
	}
	return NewLookup(labels)
}

func (o *Lookup) Classify(ctx context.Context, text string) (records.Label, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l, ok := o.labels[text]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownText, text)
	}
	return l, nil
}

func (o *Lookup) Complete(ctx context.Context, prompt string, input any) (string, error) {
	return Heuristic{}.Complete(ctx, prompt, input)
}

// Len returns the number of known texts.
func (o *Lookup) Len() int {
	return len(o.labels)
}
