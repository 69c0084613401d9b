package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/pairwise/internal/dataset"
	"github.com/JaimeStill/pairwise/internal/evaluate"
	"github.com/JaimeStill/pairwise/internal/pairs"
)

func newEvaluateCmd() *cobra.Command {
	var prediction, truth string
	var samples int

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score predicted pairs against ground truth",
		Long: `Evaluate prints precision, recall, F1 and sample pairs as JSON. Ground
truth is a dataset JSON with correct_pairs or a pair file.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prediction == "" || truth == "" {
				return usageErrorf("--prediction and --dataset are required")
			}
			if samples < 0 {
				return usageErrorf("--samples must not be negative")
			}

			predicted, err := pairs.ReadFile(prediction)
			if err != nil {
				return err
			}
			correct, err := dataset.LoadTruth(truth)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(evaluate.Evaluate(predicted, correct, samples))
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&prediction, "prediction", "p", "", "predicted pairs, one per line")
	flags.StringVarP(&truth, "dataset", "d", "", "dataset JSON or ground-truth pair file")
	flags.IntVar(&samples, "samples", evaluate.DefaultSamples, "sample pairs reported per outcome")

	return cmd
}
