package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tubeindex/internal/services/embedder"
	"tubeindex/internal/services/vectorstore"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the vector index for transcript chunks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireEmbeddingsKey(); err != nil {
				return err
			}
			if err := cfg.RequireVectorStore(); err != nil {
				return err
			}

			query := strings.Join(args, " ")
			cmdCtx := cmd.Context()

			vector, err := embedder.NewClient(cfg.Embeddings).EmbedQuery(cmdCtx, query)
			if err != nil {
				return fmt.Errorf("embed query: %w", err)
			}
			matches, err := vectorstore.NewClient(cfg.VectorStore).Query(cmdCtx, vector, topK)
			if err != nil {
				return fmt.Errorf("query index: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintln(out, "No matches")
				return nil
			}
			for i, match := range matches {
				printMatch(out, i+1, match)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "Number of matches to return")
	return cmd
}

func printMatch(out io.Writer, rank int, match vectorstore.Match) {
	title := metadataString(match.Metadata, "video_title")
	if title == "" {
		title = metadataString(match.Metadata, "video_id")
	}
	timestamp := metadataString(match.Metadata, "start_timestamp")
	link := metadataString(match.Metadata, "youtube_url")

	fmt.Fprintf(out, "%d. [%.3f] %s", rank, match.Score, title)
	if timestamp != "" {
		fmt.Fprintf(out, " @ %s", timestamp)
	}
	fmt.Fprintln(out)
	if text := metadataString(match.Metadata, "text"); text != "" {
		fmt.Fprintf(out, "   %s\n", truncate(text, 200))
	}
	if link != "" {
		fmt.Fprintf(out, "   %s\n", link)
	}
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if value, ok := metadata[key].(string); ok {
		return value
	}
	return ""
}
