package chunking

import (
	"context"
	"fmt"
	"log/slog"

	"tubeindex/internal/artifacts"
	"tubeindex/internal/config"
	"tubeindex/internal/logging"
	"tubeindex/internal/services"
	"tubeindex/internal/stage"
	"tubeindex/internal/state"
)

// Handler runs the chunking stage: it reads the transcript artifact for
// a video, chunks it, and persists the chunk artifact.
type Handler struct {
	chunker *Chunker
	store   *artifacts.Store
	logger  *slog.Logger
}

// NewHandler builds the chunking stage handler.
func NewHandler(cfg *config.Config, store *artifacts.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		chunker: NewChunker(cfg.Chunking),
		store:   store,
		logger:  logger.With(logging.String(logging.FieldComponent, "chunking")),
	}
}

// Stage identifies the pipeline stage this handler serves.
func (h *Handler) Stage() state.Stage {
	return state.StageChunking
}

// Prepare verifies the transcript artifact exists before work starts.
func (h *Handler) Prepare(ctx context.Context, video *state.Video) error {
	if !h.store.HasTranscript(video.VideoID) {
		return services.Wrap(services.ErrNotFound, "chunking", "prepare",
			fmt.Sprintf("transcript artifact missing for %s", video.VideoID), nil)
	}
	return nil
}

// Execute chunks the video's transcript and writes the chunk artifact.
func (h *Handler) Execute(ctx context.Context, video *state.Video) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record, err := h.store.LoadTranscript(video.VideoID)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "chunking", "load_transcript", "", err)
	}

	chunks := h.chunker.Chunk(record)
	if len(chunks) == 0 {
		return services.Wrap(services.ErrValidation, "chunking", "execute",
			fmt.Sprintf("transcript for %s produced no chunks", video.VideoID), nil)
	}

	if err := h.store.SaveChunks(video.VideoID, chunks); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "chunked transcript",
		logging.String(logging.FieldVideoID, video.VideoID),
		logging.Int("chunks", len(chunks)),
		logging.Float64("total_seconds", chunks[len(chunks)-1].EndTime-chunks[0].StartTime))
	return nil
}

// HealthCheck reports readiness; chunking is local and only needs the
// data directory to be writable.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(string(state.StageChunking))
}
