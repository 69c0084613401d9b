package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/pairwise/internal/predicate"
)

func newTasksCmd() *cobra.Command {
	var tasksFile string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the task catalogue",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := loadTasks(tasksFile)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tasks)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tCATEGORIES\tQUERY")
			for _, t := range tasks {
				cats := make([]string, len(t.Categories))
				for i, c := range t.Categories {
					cats[i] = string(c)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", t.ID, t.Type, strings.Join(cats, ","), t.Query)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&tasksFile, "tasks", "", "YAML task definitions to list instead of the built-in catalogue")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print tasks as JSON")

	return cmd
}

func loadTasks(path string) ([]predicate.Task, error) {
	if path == "" {
		return predicate.Catalogue()
	}
	return predicate.LoadFile(path)
}

// resolveTask finds id in the tasks file, or in the built-in catalogue
// when path is empty.
func resolveTask(id int, path string) (predicate.Task, error) {
	if path == "" {
		return predicate.Lookup(id)
	}

	tasks, err := predicate.LoadFile(path)
	if err != nil {
		return predicate.Task{}, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return predicate.Task{}, fmt.Errorf("%w: %d in %s", predicate.ErrTaskNotFound, id, path)
}
