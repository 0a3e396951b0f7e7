package discovery

import (
	"context"
	"errors"
	"testing"

	"tubeindex/internal/services"
	"tubeindex/internal/services/ytapi"
	"tubeindex/internal/testsupport"
)

type fakeAPI struct {
	channel      ytapi.Channel
	uploads      []string
	resolveErr   error
	listErr      error
	listPlaylist string
	listLimit    int
	healthErr    error
}

func (f *fakeAPI) ResolveChannel(ctx context.Context) (ytapi.Channel, error) {
	return f.channel, f.resolveErr
}

func (f *fakeAPI) ListUploads(ctx context.Context, playlistID string, limit int) ([]string, error) {
	f.listPlaylist = playlistID
	f.listLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	if limit > 0 && limit < len(f.uploads) {
		return f.uploads[:limit], nil
	}
	return f.uploads, nil
}

func (f *fakeAPI) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

func TestDiscoverReturnsUploads(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.YouTube.APIKey = "key"
	api := &fakeAPI{
		channel: ytapi.Channel{
			ChannelID:       "UCtest123",
			Title:           "Test Channel",
			UploadsPlaylist: "UUtest123",
		},
		uploads: []string{"vid1", "vid2", "vid3"},
	}
	seeder := NewSeeder(cfg, api, nil)

	videos, err := seeder.Discover(context.Background(), 0)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(videos) != 3 {
		t.Fatalf("expected 3 videos, got %d", len(videos))
	}
	if api.listPlaylist != "UUtest123" {
		t.Errorf("listed wrong playlist: %s", api.listPlaylist)
	}
	for i, video := range videos {
		if video.VideoID != api.uploads[i] {
			t.Errorf("video %d id %s", i, video.VideoID)
		}
		if video.ChannelTitle != "Test Channel" {
			t.Errorf("video %d missing channel title", i)
		}
		if video.Title != "" {
			t.Errorf("video %d title should be left for the metadata stage", i)
		}
	}
}

func TestDiscoverPassesLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.YouTube.APIKey = "key"
	api := &fakeAPI{
		channel: ytapi.Channel{UploadsPlaylist: "UUtest123"},
		uploads: []string{"a", "b", "c", "d"},
	}
	seeder := NewSeeder(cfg, api, nil)

	videos, err := seeder.Discover(context.Background(), 2)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if api.listLimit != 2 || len(videos) != 2 {
		t.Errorf("limit not honored: passed=%d got=%d videos", api.listLimit, len(videos))
	}
}

func TestDiscoverRequiresAPIKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seeder := NewSeeder(cfg, &fakeAPI{}, nil)

	_, err := seeder.Discover(context.Background(), 0)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestDiscoverPropagatesResolveError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.YouTube.APIKey = "key"
	wantErr := services.Wrap(services.ErrTransient, "ytapi", "resolve", "upstream 503", nil)
	seeder := NewSeeder(cfg, &fakeAPI{resolveErr: wantErr}, nil)

	_, err := seeder.Discover(context.Background(), 0)
	if !errors.Is(err, services.ErrTransient) {
		t.Errorf("expected transient error passthrough, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seeder := NewSeeder(cfg, &fakeAPI{}, nil)
	if health := seeder.HealthCheck(context.Background()); !health.Ready {
		t.Errorf("expected healthy, got %+v", health)
	}

	seeder = NewSeeder(cfg, &fakeAPI{healthErr: errors.New("quota exceeded")}, nil)
	if health := seeder.HealthCheck(context.Background()); health.Ready {
		t.Errorf("expected unhealthy, got %+v", health)
	}
}
