package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/pairwise/internal/checkpoint"
)

type inspection struct {
	State   *checkpoint.State       `json:"state"`
	History []checkpoint.Transition `json:"history,omitempty"`
}

func newInspectCmd(configPath *string) *cobra.Command {
	var runID string
	var history bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a run's checkpoint",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return usageErrorf("--run is required")
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Ready(cmd.Context()); err != nil {
				return err
			}

			state, err := a.store.Load(cmd.Context(), runID)
			if err != nil {
				return err
			}
			out := inspection{State: state}

			if history {
				pg, ok := a.store.(*checkpoint.PostgresStore)
				if !ok {
					return usageErrorf("--history requires the %s checkpoint backend", checkpoint.BackendPostgres)
				}
				if out.History, err = pg.History(cmd.Context(), runID); err != nil {
					return err
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run id")
	cmd.Flags().BoolVar(&history, "history", false, "include phase transitions (postgres backend)")

	return cmd
}
