package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tubeindex/internal/config"
	"tubeindex/internal/state"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [video-id ...]",
		Short: "Move retryable failures back to pending",
		Long: "Moves failed_retryable items back to pending so the next run picks " +
			"them up. With video ids, only those items are reset; without, all " +
			"retryable failures across every stage. Permanent failures are never reset.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *state.Store) error {
				moved, err := store.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d items to pending\n", moved)
				return nil
			})
		},
	}
}
