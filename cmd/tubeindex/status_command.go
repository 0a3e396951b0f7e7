package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tubeindex/internal/config"
	"tubeindex/internal/state"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var showErrors bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-stage progress for the working set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *state.Store) error {
				cmdCtx := cmd.Context()
				out := cmd.OutOrStdout()

				total, err := store.CountVideos(cmdCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Tracked videos: %d\n", total)

				rows := make([][]string, 0, len(state.Stages()))
				for _, target := range state.Stages() {
					counts, err := store.StageStats(cmdCtx, target)
					if err != nil {
						return err
					}
					rows = append(rows, []string{
						string(target),
						fmt.Sprintf("%d", counts.Pending),
						fmt.Sprintf("%d", counts.InProgress),
						fmt.Sprintf("%d", counts.Done),
						fmt.Sprintf("%d", counts.FailedRetryable),
						fmt.Sprintf("%d", counts.FailedPermanent),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Stage", "Pending", "In Progress", "Done", "Retryable", "Permanent"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
				))

				if !showErrors {
					return nil
				}
				return printFailures(cmd, store)
			})
		},
	}

	cmd.Flags().BoolVar(&showErrors, "errors", false, "List failed items with their last error")
	return cmd
}

func printFailures(cmd *cobra.Command, store *state.Store) error {
	out := cmd.OutOrStdout()
	printed := false
	for _, target := range state.Stages() {
		failures, err := store.FailedStatuses(cmd.Context(), target)
		if err != nil {
			return err
		}
		for _, failure := range failures {
			printed = true
			fmt.Fprintf(out, "%s %s [%s, %d attempts]: %s\n",
				failure.Stage, failure.VideoID, failure.Status,
				failure.AttemptCount, truncate(failure.LastError, 160))
		}
	}
	if !printed {
		fmt.Fprintln(out, "No failed items")
	}
	return nil
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
