package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/pairwise/internal/dataset"
	"github.com/JaimeStill/pairwise/pkg/formatting"
)

// Files written by generate.
const (
	contextFile = "context.txt"
	datasetFile = "dataset.json"
	labelsFile  = "labels.json"
)

func newGenerateCmd() *cobra.Command {
	var (
		cfg       dataset.Config
		task      int
		tasksFile string
		outDir    string
		start     string
		end       string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic context with its ground truth",
		Long: `Generate writes three files to --out: the prompt (` + contextFile + `), the
dataset record with correct pairs (` + datasetFile + `), and the question
labels for the lookup oracle (` + labelsFile + `).`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := resolveTask(task, tasksFile)
			if err != nil {
				return err
			}
			if cfg.Start, err = parseDay(start); err != nil {
				return err
			}
			if cfg.End, err = parseDay(end); err != nil {
				return err
			}

			ds, entries, err := dataset.Build(cfg, t)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			prompt := dataset.Prompt(entries, t)
			if err := os.WriteFile(filepath.Join(outDir, contextFile), prompt, 0o644); err != nil {
				return fmt.Errorf("write context: %w", err)
			}
			if err := writeJSON(filepath.Join(outDir, datasetFile), ds); err != nil {
				return err
			}
			if err := writeJSON(filepath.Join(outDir, labelsFile), dataset.Labels(entries)); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"task %d: %d entries from %d users, %s (~%d tokens), %d correct pairs written to %s\n",
				t.ID, ds.Metadata.NumEntries, ds.Metadata.NumUsers,
				formatting.FormatBytes(int64(len(prompt)), 1), ds.Metadata.ActualTokens,
				ds.NumCorrectPairs, outDir,
			)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&task, "task", "t", 1, "task id")
	flags.StringVar(&tasksFile, "tasks", "", "YAML task definitions used instead of the built-in catalogue")
	flags.IntVar(&cfg.TargetTokens, "tokens", 0, "stop once the context reaches this many estimated tokens")
	flags.IntVar(&cfg.Entries, "entries", 0, "stop after this many records")
	flags.IntVar(&cfg.Users, "users", 0, "number of distinct users (default 500)")
	flags.Uint64Var(&cfg.Seed, "seed", 0, "random seed (default 42)")
	flags.StringVar(&start, "start", "", "first record date, YYYY-MM-DD")
	flags.StringVar(&end, "end", "", "last record date, YYYY-MM-DD")
	flags.StringVarP(&outDir, "out", "o", ".", "output directory")

	return cmd
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, usageErrorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
