package dataset_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JaimeStill/pairwise/internal/dataset"
	"github.com/JaimeStill/pairwise/internal/evaluate"
	"github.com/JaimeStill/pairwise/internal/pairs"
	"github.com/JaimeStill/pairwise/internal/predicate"
	"github.com/JaimeStill/pairwise/internal/records"
)

func TestGenerateDeterministic(t *testing.T) {
	cfg := dataset.Config{Entries: 200, Users: 30, Seed: 7}

	a, err := dataset.Generate(cfg)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	b, err := dataset.Generate(cfg)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	if len(a) != 200 {
		t.Fatalf("len = %d, want 200", len(a))
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different entries (-a +b):\n%s", diff)
	}

	c, err := dataset.Generate(dataset.Config{Entries: 200, Users: 30, Seed: 8})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if cmp.Equal(a, c) {
		t.Error("different seeds produced identical entries")
	}

	for _, e := range a {
		if e.Date.Before(dataset.DefaultStart) || e.Date.After(dataset.DefaultEnd) {
			t.Errorf("date %v outside default range", e.Date)
		}
		if len(e.User) != 5 {
			t.Errorf("user %q is not a five digit id", e.User)
		}
		if !e.Label.Valid() {
			t.Errorf("invalid label %q", e.Label)
		}
	}
}

func TestGenerateTargetTokens(t *testing.T) {
	entries, err := dataset.Generate(dataset.Config{TargetTokens: 2000})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	tokens := dataset.EstimateTokens(string(dataset.Render(entries)))
	if tokens < 2000 {
		t.Errorf("rendered tokens = %d, want >= 2000", tokens)
	}
	if tokens > 2100 {
		t.Errorf("rendered tokens = %d, overshoots target by more than a line", tokens)
	}
}

func TestGenerateInvalidConfig(t *testing.T) {
	_, err := dataset.Generate(dataset.Config{})
	if !errors.Is(err, dataset.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestRenderDecomposes(t *testing.T) {
	task, err := predicate.Lookup(1)
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}

	entries, err := dataset.Generate(dataset.Config{Entries: 150, Users: 20})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	prompt := dataset.Prompt(entries, task)
	if !strings.HasPrefix(string(prompt), dataset.Header) {
		t.Error("prompt does not start with header")
	}
	if !strings.HasSuffix(string(prompt), dataset.QuerySuffix) {
		t.Error("prompt does not end with query suffix")
	}

	units, err := records.Lines{}.Split(prompt)
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}
	if len(units) != len(entries) {
		t.Fatalf("units = %d, want %d", len(units), len(entries))
	}

	labels := make(map[string]records.Label, len(units))
	for i, u := range units {
		if u.Entity != entries[i].User || u.Text != entries[i].Question || !u.Timestamp.Equal(entries[i].Date) {
			t.Fatalf("unit %d = %+v, want entry %+v", i, u, entries[i])
		}
		labels[u.ID] = entries[i].Label
	}

	fromText := evaluate.DeriveTruth(records.GroupByEntity(units, labels), task)
	generated, trueLabels := dataset.Units(entries)
	fromEntries := evaluate.DeriveTruth(records.GroupByEntity(generated, trueLabels), task)
	if diff := cmp.Diff(fromEntries.Sorted(), fromText.Sorted()); diff != "" {
		t.Errorf("truth differs after rendering (-entries +text):\n%s", diff)
	}
}

func TestBuildAndLoadTruth(t *testing.T) {
	task, err := predicate.Lookup(11)
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}

	ds, entries, err := dataset.Build(dataset.Config{Entries: 300, Users: 40, Seed: 3}, task)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if ds.Metadata.NumEntries != len(entries) || ds.NumCorrectPairs != len(ds.CorrectPairs) {
		t.Errorf("metadata = %+v, num_correct_pairs = %d", ds.Metadata, ds.NumCorrectPairs)
	}
	if ds.FullQuery != task.Query+" "+dataset.QuerySuffix {
		t.Errorf("full query = %q", ds.FullQuery)
	}

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "dataset.json")
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	fromJSON, err := dataset.LoadTruth(jsonPath)
	if err != nil {
		t.Fatalf("LoadTruth(json) error: %v", err)
	}
	if diff := cmp.Diff(ds.CorrectPairs.Sorted(), fromJSON.Sorted()); diff != "" {
		t.Errorf("json truth mismatch (-want +got):\n%s", diff)
	}

	pairPath := filepath.Join(dir, "truth.txt")
	if err := pairs.WriteFile(pairPath, ds.CorrectPairs); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	fromPairs, err := dataset.LoadTruth(pairPath)
	if err != nil {
		t.Fatalf("LoadTruth(pairs) error: %v", err)
	}
	if diff := cmp.Diff(ds.CorrectPairs.Sorted(), fromPairs.Sorted()); diff != "" {
		t.Errorf("pair file truth mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTruthMalformed(t *testing.T) {
	dir := t.TempDir()

	tests := map[string]string{
		"bad.json":   `{"metadata": {}`,
		"empty.json": `{"metadata": {"task_id": 1}}`,
		"bad.txt":    "12,34\nnot a pair\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := dataset.LoadTruth(path); !errors.Is(err, dataset.ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
		})
	}

	if _, err := dataset.LoadTruth(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestLabels(t *testing.T) {
	entries := []dataset.Entry{
		{User: "10001", Question: "Who founded Apple?", Label: records.Human},
		{User: "10002", Question: "Who founded Apple?", Label: records.Human},
		{User: "10002", Question: "What does RAM stand for?", Label: records.Abbreviation},
	}
	want := map[string]string{
		"Who founded Apple?":       "HUM",
		"What does RAM stand for?": "ABBR",
	}
	if diff := cmp.Diff(want, dataset.Labels(entries)); diff != "" {
		t.Errorf("Labels mismatch (-want +got):\n%s", diff)
	}
}
