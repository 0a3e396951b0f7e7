package discovery

import (
	"context"
	"log/slog"

	"tubeindex/internal/config"
	"tubeindex/internal/logging"
	"tubeindex/internal/services"
	"tubeindex/internal/services/ytapi"
	"tubeindex/internal/stage"
	"tubeindex/internal/state"
)

// API is the subset of the YouTube client the seeder needs.
type API interface {
	ResolveChannel(ctx context.Context) (ytapi.Channel, error)
	ListUploads(ctx context.Context, playlistID string, limit int) ([]string, error)
	HealthCheck(ctx context.Context) error
}

// Seeder enumerates the channel's uploads playlist and creates the
// pipeline working set. Unlike the per-item stages it produces items
// instead of consuming them.
type Seeder struct {
	cfg    *config.Config
	api    API
	logger *slog.Logger
}

// NewSeeder builds the discovery seeder.
func NewSeeder(cfg *config.Config, api API, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Seeder{
		cfg:    cfg,
		api:    api,
		logger: logger.With(logging.String(logging.FieldComponent, "discovery")),
	}
}

// Discover resolves the channel and returns every upload as a bare
// video row. Identity fields beyond the id are filled by the metadata
// stage.
func (s *Seeder) Discover(ctx context.Context, limit int) ([]*state.Video, error) {
	if err := s.cfg.RequireYouTubeKey(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "discovery", "discover", err.Error(), nil)
	}

	channel, err := s.api.ResolveChannel(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "resolved channel",
		logging.String("channel_id", channel.ChannelID),
		logging.String("channel_title", channel.Title),
		logging.String("uploads_playlist", channel.UploadsPlaylist))

	videoIDs, err := s.api.ListUploads(ctx, channel.UploadsPlaylist, limit)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "enumerated uploads", logging.Int("videos", len(videoIDs)))

	videos := make([]*state.Video, 0, len(videoIDs))
	for _, videoID := range videoIDs {
		videos = append(videos, &state.Video{
			VideoID:      videoID,
			ChannelTitle: channel.Title,
		})
	}
	return videos, nil
}

// HealthCheck reports whether the Data API is usable.
func (s *Seeder) HealthCheck(ctx context.Context) stage.Health {
	if err := s.api.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(string(state.StageDiscovery), err.Error())
	}
	return stage.Healthy(string(state.StageDiscovery))
}
