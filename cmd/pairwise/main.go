package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/pairwise/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "pairwise",
		Short: "Find entity pairs that satisfy a predicate over labelled records",
		Long: `pairwise decomposes a long context into records, classifies each record
through an oracle, and enumerates the entity pairs a task's predicate
accepts. Runs checkpoint after every phase and resume by run id.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.BaseConfigFile, "base config file; config.<PAIRWISE_ENV>.toml beside it is applied as an overlay")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.AddCommand(
		newRunCmd(&configPath),
		newInspectCmd(&configPath),
		newEvaluateCmd(),
		newGenerateCmd(),
		newTasksCmd(),
	)
	return root
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageErrorf("%s takes no arguments, got %q", cmd.CommandPath(), args)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, &usageError{err: err}
	}
	return cfg, nil
}
