// Package dataset generates synthetic OOLONG-Pairs inputs with known
// ground truth and loads ground truth for evaluation.
package dataset

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JaimeStill/pairwise/internal/evaluate"
	"github.com/JaimeStill/pairwise/internal/pairs"
	"github.com/JaimeStill/pairwise/internal/predicate"
	"github.com/JaimeStill/pairwise/internal/records"
)

// Header precedes the record lines of a rendered context.
const Header = "The following lines contain question data. Each line has:\nDate || User || Instance (question)\n\n"

// QuerySuffix is appended to a task query to form the full query.
const QuerySuffix = "Each of the questions can be labelled as one of the labels (the data does not provide the labels, you need to figure out the label from the semantics of the question): description and abstract concept, entity, human being, numeric value, location, abbreviation. In your answer, list all pairs in the format (user id 1, user id 2), separated by newlines."

const dateLayout = "Jan 02, 2006"

var (
	// ErrInvalidConfig indicates generation parameters that cannot produce
	// a dataset.
	ErrInvalidConfig = errors.New("invalid dataset config")
	// ErrMalformed indicates a dataset or truth file that cannot be parsed.
	ErrMalformed = errors.New("malformed dataset")
)

var (
	DefaultStart = time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC)
	DefaultEnd   = time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)
)

//go:embed questions.yaml
var questionsYAML []byte

var questions = sync.OnceValues(func() (map[records.Label][]string, error) {
	var bank map[records.Label][]string
	if err := yaml.Unmarshal(questionsYAML, &bank); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	for _, l := range records.Vocabulary {
		if len(bank[l]) == 0 {
			return nil, fmt.Errorf("question bank has no %s questions", l)
		}
	}
	return bank, nil
})

// Config controls generation. Generation stops when the rendered context
// reaches TargetTokens or Entries lines are produced, whichever comes
// first; at least one of the two must be set.
type Config struct {
	TargetTokens int
	Entries      int
	Users        int
	Seed         uint64
	Start        time.Time
	End          time.Time
}

func (c *Config) finalize() error {
	if c.Users == 0 {
		c.Users = 500
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.Start.IsZero() {
		c.Start = DefaultStart
	}
	if c.End.IsZero() {
		c.End = DefaultEnd
	}

	switch {
	case c.TargetTokens <= 0 && c.Entries <= 0:
		return fmt.Errorf("%w: target_tokens or entries required", ErrInvalidConfig)
	case c.Users < 1:
		return fmt.Errorf("%w: users must be positive", ErrInvalidConfig)
	case c.End.Before(c.Start):
		return fmt.Errorf("%w: end before start", ErrInvalidConfig)
	}
	return nil
}

// Entry is one generated question with its true label.
type Entry struct {
	Date     time.Time
	User     string
	Question string
	Label    records.Label
}

// Line renders e as an OOLONG record line.
func (e Entry) Line() string {
	return fmt.Sprintf("Date: %s || User: %s || Instance: %s", e.Date.Format(dateLayout), e.User, e.Question)
}

// Metadata describes a generated dataset.
type Metadata struct {
	TargetTokens int    `json:"target_tokens"`
	ActualTokens int    `json:"actual_tokens"`
	NumEntries   int    `json:"num_entries"`
	NumUsers     int    `json:"num_users"`
	TaskID       int    `json:"task_id"`
	Seed         uint64 `json:"seed"`
}

// Dataset is the ground-truth record of a generated input.
type Dataset struct {
	Metadata        Metadata       `json:"metadata"`
	Task            predicate.Task `json:"task"`
	FullQuery       string         `json:"full_query"`
	CorrectPairs    pairs.Set      `json:"correct_pairs"`
	NumCorrectPairs int            `json:"num_correct_pairs"`
}

// EstimateTokens approximates a tokenizer at four bytes per token.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Generate produces entries for cfg. The same config always yields the
// same entries.
func Generate(cfg Config) ([]Entry, error) {
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	bank, err := questions()
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	pool := make([]string, cfg.Users)
	for i := range pool {
		pool[i] = strconv.Itoa(10000 + rng.IntN(90000))
	}
	days := int(cfg.End.Sub(cfg.Start).Hours() / 24)

	var entries []Entry
	size := len(Header)
	for {
		if cfg.Entries > 0 && len(entries) >= cfg.Entries {
			break
		}
		if cfg.TargetTokens > 0 && (size+3)/4 >= cfg.TargetTokens {
			break
		}

		label := records.Vocabulary[rng.IntN(len(records.Vocabulary))]
		options := bank[label]
		e := Entry{
			Date:     cfg.Start.AddDate(0, 0, rng.IntN(days+1)),
			User:     pool[rng.IntN(len(pool))],
			Question: options[rng.IntN(len(options))],
			Label:    label,
		}
		entries = append(entries, e)
		size += len(e.Line()) + 1
	}

	return entries, nil
}

// Render formats entries as a context: the header followed by one record
// line per entry.
func Render(entries []Entry) []byte {
	var b bytes.Buffer
	b.WriteString(Header)
	for _, e := range entries {
		b.WriteString("\n")
		b.WriteString(e.Line())
	}
	return b.Bytes()
}

// FullQuery returns the task query with the answer-format suffix.
func FullQuery(t predicate.Task) string {
	return t.Query + " " + QuerySuffix
}

// Prompt renders the complete model input: context, blank line, full query.
func Prompt(entries []Entry, t predicate.Task) []byte {
	out := Render(entries)
	out = append(out, "\n\n"...)
	return append(out, FullQuery(t)...)
}

// Units converts entries to classification units in input order.
func Units(entries []Entry) ([]records.Unit, map[string]records.Label) {
	units := make([]records.Unit, len(entries))
	labels := make(map[string]records.Label, len(entries))
	for i, e := range entries {
		id := fmt.Sprintf("g%07d", i+1)
		units[i] = records.Unit{ID: id, Entity: e.User, Timestamp: e.Date, Text: e.Question}
		labels[id] = e.Label
	}
	return units, labels
}

// Labels returns the true label of every distinct question, the table
// replayed by the lookup oracle.
func Labels(entries []Entry) map[string]string {
	out := make(map[string]string)
	for _, e := range entries {
		out[e.Question] = string(e.Label)
	}
	return out
}

// Build generates entries and the dataset record holding their ground
// truth for task.
func Build(cfg Config, task predicate.Task) (*Dataset, []Entry, error) {
	entries, err := Generate(cfg)
	if err != nil {
		return nil, nil, err
	}

	units, labels := Units(entries)
	profiles := records.GroupByEntity(units, labels)
	truth := evaluate.DeriveTruth(profiles, task)

	ds := &Dataset{
		Metadata: Metadata{
			TargetTokens: cfg.TargetTokens,
			ActualTokens: EstimateTokens(string(Render(entries))),
			NumEntries:   len(entries),
			NumUsers:     len(profiles),
			TaskID:       task.ID,
			Seed:         cfg.Seed,
		},
		Task:            task,
		FullQuery:       FullQuery(task),
		CorrectPairs:    truth,
		NumCorrectPairs: len(truth),
	}
	if ds.Metadata.Seed == 0 {
		ds.Metadata.Seed = 42
	}
	return ds, entries, nil
}

// Load reads a dataset JSON file.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, path, err)
	}
	if ds.CorrectPairs == nil {
		return nil, fmt.Errorf("%w: %s has no correct_pairs", ErrMalformed, path)
	}
	return &ds, nil
}

// LoadTruth reads ground truth from either a dataset JSON file or a pair
// file with one pair per line.
func LoadTruth(path string) (pairs.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read truth: %w", err)
	}

	if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		ds, err := Load(path)
		if err != nil {
			return nil, err
		}
		return ds.CorrectPairs, nil
	}

	s, err := pairs.Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, path, err)
	}
	return s, nil
}
