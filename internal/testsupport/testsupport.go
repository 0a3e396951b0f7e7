// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"context"
	"testing"
	"time"

	"tubeindex/internal/config"
	"tubeindex/internal/state"
)

// NewConfig returns a validated config rooted in per-test temp
// directories.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.YouTube.ChannelID = "UCtest123"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// MustOpenStore opens a state store against the config's data dir and
// closes it when the test finishes.
func MustOpenStore(t *testing.T, cfg *config.Config) *state.Store {
	t.Helper()
	store, err := state.Open(cfg)
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close state store: %v", err)
		}
	})
	return store
}

// SeedVideo inserts a video row with sensible defaults.
func SeedVideo(t *testing.T, store *state.Store, videoID string) *state.Video {
	t.Helper()
	video := &state.Video{
		VideoID:          videoID,
		Title:            "Video " + videoID,
		PublishedAt:      time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC),
		DurationSeconds:  1847,
		ChannelTitle:     "Test Channel",
		CaptionAvailable: true,
	}
	if err := store.UpsertVideo(context.Background(), video); err != nil {
		t.Fatalf("seed video %s: %v", videoID, err)
	}
	return video
}

// SetStage records a stage status for a video.
func SetStage(t *testing.T, store *state.Store, videoID string, stage state.Stage, status state.Status) {
	t.Helper()
	if err := store.SetStatus(context.Background(), videoID, stage, status, ""); err != nil {
		t.Fatalf("set %s/%s=%s: %v", videoID, stage, status, err)
	}
}

// CompleteStages marks the given stages done for a video.
func CompleteStages(t *testing.T, store *state.Store, videoID string, stages ...state.Stage) {
	t.Helper()
	for _, stage := range stages {
		SetStage(t, store, videoID, stage, state.StatusDone)
	}
}
