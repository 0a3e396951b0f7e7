package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tubeindex/internal/config"
	"tubeindex/internal/pipeline"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the database and every stage's external dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOrchestrator(func(cfg *config.Config, orch *pipeline.Orchestrator) error {
				out := cmd.OutOrStdout()
				failed := false

				rows := [][]string{}
				for _, check := range orch.Health(cmd.Context()) {
					status := "ok"
					if !check.Ready {
						status = "unhealthy"
						failed = true
					}
					rows = append(rows, []string{check.Name, status, check.Detail})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Stage", "Status", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))

				if failed {
					return errors.New("one or more stages are unhealthy")
				}
				return nil
			})
		},
	}
}
