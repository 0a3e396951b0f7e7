package metadata

import (
	"context"
	"fmt"
	"log/slog"

	"tubeindex/internal/config"
	"tubeindex/internal/logging"
	"tubeindex/internal/services"
	"tubeindex/internal/services/ytapi"
	"tubeindex/internal/stage"
	"tubeindex/internal/state"
)

// API is the subset of the YouTube client the metadata stage needs.
type API interface {
	FetchMetadata(ctx context.Context, videoIDs []string) ([]ytapi.VideoMetadata, error)
	HealthCheck(ctx context.Context) error
}

// Handler enriches discovered videos with title, publish date,
// duration, and caption availability from the Data API.
type Handler struct {
	cfg    *config.Config
	api    API
	store  *state.Store
	logger *slog.Logger
}

// NewHandler builds the metadata stage handler.
func NewHandler(cfg *config.Config, api API, store *state.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		cfg:    cfg,
		api:    api,
		store:  store,
		logger: logger.With(logging.String(logging.FieldComponent, "metadata")),
	}
}

// Stage identifies the pipeline stage this handler serves.
func (h *Handler) Stage() state.Stage {
	return state.StageMetadata
}

// Prepare verifies API credentials are configured.
func (h *Handler) Prepare(ctx context.Context, video *state.Video) error {
	if err := h.cfg.RequireYouTubeKey(); err != nil {
		return services.Wrap(services.ErrConfiguration, "metadata", "prepare", err.Error(), nil)
	}
	return nil
}

// Execute fetches the video's metadata and updates its row. A video the
// API no longer returns has been deleted or made private, which is a
// permanent failure.
func (h *Handler) Execute(ctx context.Context, video *state.Video) error {
	items, err := h.api.FetchMetadata(ctx, []string{video.VideoID})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return services.Wrap(services.ErrPermanentContent, "metadata", "execute",
			fmt.Sprintf("video %s no longer exists", video.VideoID), nil)
	}

	item := items[0]
	video.Title = item.Title
	video.PublishedAt = item.PublishedAt
	video.DurationSeconds = item.DurationSeconds
	if item.ChannelTitle != "" {
		video.ChannelTitle = item.ChannelTitle
	}
	video.ThumbnailURL = item.ThumbnailURL
	video.CaptionAvailable = item.CaptionAvailable

	if err := h.store.UpsertVideo(ctx, video); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "fetched metadata",
		logging.String(logging.FieldVideoID, video.VideoID),
		logging.String("title", video.Title),
		logging.Int64("duration_seconds", video.DurationSeconds),
		logging.Bool("caption_available", video.CaptionAvailable))
	return nil
}

// HealthCheck reports whether the Data API is usable.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if err := h.api.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(string(state.StageMetadata), err.Error())
	}
	return stage.Healthy(string(state.StageMetadata))
}
