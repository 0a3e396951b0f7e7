package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tubeindex/internal/config"
	"tubeindex/internal/pipeline"
	"tubeindex/internal/state"
)

type runFlags struct {
	limit        int
	retryBlocked bool
	incremental  bool
	test         bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Maximum number of items to process (0 for all)")
	cmd.Flags().BoolVar(&f.retryBlocked, "retry-blocked", false, "Also select items that failed retryably")
	cmd.Flags().BoolVar(&f.incremental, "incremental", false, "Only process items not yet done for the stage")
	cmd.Flags().BoolVar(&f.test, "test", false, "Cap the run at the configured test limit")
}

func (f *runFlags) options() pipeline.Options {
	return pipeline.Options{
		Limit:        f.limit,
		RetryBlocked: f.retryBlocked,
		Incremental:  f.incremental,
		Test:         f.test,
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every pipeline stage in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOrchestrator(func(cfg *config.Config, orch *pipeline.Orchestrator) error {
				summaries, err := orch.RunAll(cmd.Context(), flags.options())
				printSummaries(cmd, summaries)
				return runError(err)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newStageCommands(ctx *commandContext) []*cobra.Command {
	specs := []struct {
		use   string
		short string
		stage state.Stage
	}{
		{"discover", "Enumerate the channel's uploads into the working set", state.StageDiscovery},
		{"metadata", "Fetch video metadata from the YouTube Data API", state.StageMetadata},
		{"transcribe", "Extract video transcripts through the proxy pool", state.StageTranscription},
		{"chunk", "Split transcripts into duration-bounded chunks", state.StageChunking},
		{"embed", "Embed chunks with the configured embedding model", state.StageEmbedding},
		{"upload", "Upload new vectors to the vector index", state.StageUpload},
	}

	commands := make([]*cobra.Command, 0, len(specs))
	for _, spec := range specs {
		target := spec.stage
		flags := &runFlags{}
		cmd := &cobra.Command{
			Use:   spec.use,
			Short: spec.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withOrchestrator(func(cfg *config.Config, orch *pipeline.Orchestrator) error {
					summary, err := orch.RunStage(cmd.Context(), target, flags.options())
					printSummaries(cmd, []pipeline.Summary{summary})
					return runError(err)
				})
			},
		}
		flags.register(cmd)
		commands = append(commands, cmd)
	}
	return commands
}

func printSummaries(cmd *cobra.Command, summaries []pipeline.Summary) {
	if len(summaries) == 0 {
		return
	}
	rows := make([][]string, 0, len(summaries))
	for _, summary := range summaries {
		rows = append(rows, []string{
			string(summary.Stage),
			summary.RunID,
			fmt.Sprintf("%d", summary.Selected),
			fmt.Sprintf("%d", summary.Done),
			fmt.Sprintf("%d", summary.Failed),
			fmt.Sprintf("%d", summary.Skipped),
			summary.Duration.Round(time.Millisecond).String(),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Stage", "Run", "Selected", "Done", "Failed", "Skipped", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
}

// runError keeps lock contention and failure-rate aborts as command
// errors (non-zero exit) while giving them readable messages.
func runError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pipeline.ErrRunLocked):
		return fmt.Errorf("%w; wait for it to finish or remove a stale lock file", err)
	default:
		return err
	}
}
