package formatting_test

import (
	"errors"
	"testing"

	"github.com/JaimeStill/pairwise/pkg/formatting"
)

type reply struct {
	Label string `json:"label"`
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"bare json", `{"label": "LOC"}`, "LOC", false},
		{"padded", "\n  {\"label\": \"NUM\"}  \n", "NUM", false},
		{"json fence", "```json\n{\"label\": \"HUM\"}\n```", "HUM", false},
		{"plain fence", "```\n{\"label\": \"DESC\"}\n```", "DESC", false},
		{"embedded in prose", `The answer is {"label": "ENTY"} based on the question.`, "ENTY", false},
		{"no json", "LOC", "", true},
		{"broken json", `{"label": `, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatting.Parse[reply](tt.content)
			if tt.wantErr {
				if !errors.Is(err, formatting.ErrParseFailed) {
					t.Fatalf("Parse() error = %v, want ErrParseFailed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got.Label != tt.want {
				t.Errorf("Parse() label = %q, want %q", got.Label, tt.want)
			}
		})
	}
}
