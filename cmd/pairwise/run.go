package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/pairwise/internal/checkpoint"
	"github.com/JaimeStill/pairwise/internal/config"
	"github.com/JaimeStill/pairwise/internal/controller"
	"github.com/JaimeStill/pairwise/internal/dataset"
	"github.com/JaimeStill/pairwise/internal/evaluate"
	"github.com/JaimeStill/pairwise/internal/pairs"
	"github.com/JaimeStill/pairwise/internal/predicate"
)

type runFlags struct {
	input     string
	task      int
	tasksFile string
	dataset   string
	runID     string
	output    string
	answer    string
}

func newRunCmd(configPath *string) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Find the pairs of a context for a task",
		Long: `Run decomposes the input, classifies every record, and writes the pairs
satisfying the task, one "a,b" line each. Re-running with the same --run-id
resumes from the last checkpoint.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return execRun(cmd.Context(), cfg, f, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.input, "input", "i", "", "context file, or "+blobScheme+"<key> in the configured container")
	flags.IntVarP(&f.task, "task", "t", 0, "task id")
	flags.StringVar(&f.tasksFile, "tasks", "", "YAML task definitions used instead of the built-in catalogue")
	flags.StringVar(&f.dataset, "dataset", "", "dataset JSON supplying the task; the answer is scored against its correct pairs")
	flags.StringVar(&f.runID, "run-id", "", "run to create or resume (default: a new UUID)")
	flags.StringVarP(&f.output, "output", "o", "", "write pairs to this file instead of stdout")
	flags.StringVar(&f.answer, "answer", "", "write the full answer as JSON to this file")

	return cmd
}

func execRun(ctx context.Context, cfg *config.Config, f runFlags, stdout io.Writer) error {
	if f.input == "" {
		return usageErrorf("--input is required")
	}

	var ds *dataset.Dataset
	var task predicate.Task
	switch {
	case f.dataset != "":
		loaded, err := dataset.Load(f.dataset)
		if err != nil {
			return err
		}
		if err := loaded.Task.Validate(); err != nil {
			return err
		}
		ds, task = loaded, loaded.Task
	case f.task != 0:
		t, err := resolveTask(f.task, f.tasksFile)
		if err != nil {
			return err
		}
		task = t
	default:
		return usageErrorf("--task or --dataset is required")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Metrics.Enabled {
		srv := newMetricsServer(&cfg.Metrics, a.infra.Registry, a.infra.Lifecycle, a.infra.Logger)
		if err := srv.Start(a.infra.Lifecycle); err != nil {
			return err
		}
	}
	if err := a.Ready(ctx); err != nil {
		return err
	}

	opts, err := a.options()
	if err != nil {
		return err
	}

	ctrl, err := a.engine(ctx)
	if err != nil {
		return err
	}

	input, err := a.readInput(ctx, f.input)
	if err != nil {
		return err
	}

	runID := f.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	a.logger.Info("run starting", "run_id", runID, "task", task.ID, "version", cfg.Version, "env", cfg.Env())

	answer, runErr := ctrl.Run(ctx, controller.Problem{
		RunID: runID,
		Input: input,
		Task:  task,
	}, opts)

	if runErr != nil {
		var exhausted *controller.ExhaustedError
		if !errors.As(runErr, &exhausted) || exhausted.Answer == nil {
			return fmt.Errorf("run %s: %w", runID, runErr)
		}
		a.logger.Warn("writing partial answer", "run_id", runID, "iterations", exhausted.Iterations)
		answer = exhausted.Answer
	}

	if err := writeAnswer(answer, f, stdout); err != nil {
		return err
	}

	a.logger.Info(
		"run finished",
		"run_id", runID,
		"pairs", len(answer.Pairs),
		"qualifying", len(answer.Qualifying),
		"coverage", answer.Coverage,
		"partial", answer.Partial,
	)

	if ds != nil {
		report := evaluate.Score(answer.Pairs, ds.CorrectPairs)
		a.logger.Info(
			"answer scored",
			"precision", report.Precision,
			"recall", report.Recall,
			"f1", report.F1,
			"true_positives", report.TruePositives,
			"truth_count", report.TruthCount,
		)
	}

	if runErr != nil {
		return fmt.Errorf("run %s: %w", runID, runErr)
	}
	return nil
}

func writeAnswer(answer *checkpoint.Answer, f runFlags, stdout io.Writer) error {
	if f.output != "" {
		if err := pairs.WriteFile(f.output, answer.Pairs); err != nil {
			return err
		}
	} else if err := pairs.Write(stdout, answer.Pairs); err != nil {
		return err
	}

	if f.answer == "" {
		return nil
	}
	data, err := json.MarshalIndent(answer, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	if err := os.WriteFile(f.answer, data, 0o644); err != nil {
		return fmt.Errorf("write answer: %w", err)
	}
	return nil
}
