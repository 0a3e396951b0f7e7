package ytapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tubeindex/internal/config"
	"tubeindex/internal/services"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := config.YouTube{
		APIKey:         "test-key",
		ChannelID:      "UCabc123",
		TimeoutSeconds: 5,
	}
	return NewClient(cfg, WithBaseURL(server.URL))
}

func TestResolveChannelByID(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != "UCabc123" {
			t.Errorf("expected id UCabc123, got %q", got)
		}
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("expected api key in query, got %q", got)
		}
		w.Write([]byte(`{"items":[{"id":"UCabc123","snippet":{"title":"Test Channel"},"contentDetails":{"relatedPlaylists":{"uploads":"UUabc123"}}}]}`))
	})

	channel, err := client.ResolveChannel(context.Background())
	if err != nil {
		t.Fatalf("resolve channel: %v", err)
	}
	if channel.UploadsPlaylist != "UUabc123" || channel.Title != "Test Channel" {
		t.Errorf("unexpected channel: %+v", channel)
	}
}

func TestResolveChannelDerivesUploadsPlaylist(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"id":"UCxyz789","snippet":{"title":"Other"},"contentDetails":{"relatedPlaylists":{}}}]}`))
	})

	channel, err := client.ResolveChannel(context.Background())
	if err != nil {
		t.Fatalf("resolve channel: %v", err)
	}
	if channel.UploadsPlaylist != "UUxyz789" {
		t.Errorf("expected derived UU playlist, got %q", channel.UploadsPlaylist)
	}
}

func TestListUploadsPaginates(t *testing.T) {
	var pages []string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		pages = append(pages, r.URL.Query().Get("pageToken"))
		if len(pages) == 1 {
			w.Write([]byte(`{"items":[{"contentDetails":{"videoId":"vid1"}},{"contentDetails":{"videoId":"vid2"}}],"nextPageToken":"page2"}`))
			return
		}
		w.Write([]byte(`{"items":[{"contentDetails":{"videoId":"vid3"}}]}`))
	})

	ids, err := client.ListUploads(context.Background(), "UUabc123", 0)
	if err != nil {
		t.Fatalf("list uploads: %v", err)
	}
	if len(ids) != 3 || ids[2] != "vid3" {
		t.Errorf("unexpected video ids: %v", ids)
	}
	if len(pages) != 2 || pages[1] != "page2" {
		t.Errorf("unexpected pagination: %v", pages)
	}
}

func TestListUploadsHonorsLimit(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"contentDetails":{"videoId":"vid1"}},{"contentDetails":{"videoId":"vid2"}}],"nextPageToken":"more"}`))
	})

	ids, err := client.ListUploads(context.Background(), "UUabc123", 1)
	if err != nil {
		t.Fatalf("list uploads: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("expected limit of 1, got %v", ids)
	}
}

func TestFetchMetadataParsesDetails(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"id":"vid1","snippet":{"title":"First","publishedAt":"2026-01-10T08:00:00Z","channelTitle":"Test Channel","thumbnails":{"high":{"url":"https://i.ytimg.com/vi/vid1/hqdefault.jpg"}}},"contentDetails":{"duration":"PT30M47S","caption":"true"}}]}`))
	})

	videos, err := client.FetchMetadata(context.Background(), []string{"vid1"})
	if err != nil {
		t.Fatalf("fetch metadata: %v", err)
	}
	if len(videos) != 1 {
		t.Fatalf("expected 1 video, got %d", len(videos))
	}
	video := videos[0]
	if video.DurationSeconds != 1847 {
		t.Errorf("expected 1847s duration, got %d", video.DurationSeconds)
	}
	if !video.CaptionAvailable {
		t.Error("expected caption available")
	}
	if video.ThumbnailURL == "" {
		t.Error("expected thumbnail url")
	}
}

func TestQuotaErrorsAreRateLimited(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"quota exceeded","errors":[{"reason":"quotaExceeded"}]}}`))
	})

	_, err := client.ListUploads(context.Background(), "UUabc123", 0)
	if !errors.Is(err, services.ErrRateLimit) {
		t.Errorf("expected rate limit error for quota exhaustion, got %v", err)
	}
}

func TestBadKeyIsConfigurationError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"API key not valid","errors":[{"reason":"badRequest"}]}}`))
	})

	_, err := client.ResolveChannel(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestParseISODuration(t *testing.T) {
	cases := []struct {
		input string
		want  int64
	}{
		{"PT30M47S", 1847},
		{"PT1H2M5S", 3725},
		{"PT45S", 45},
		{"PT2H", 7200},
		{"P0D", 0},
		{"", 0},
	}
	for _, tc := range cases {
		got, err := ParseISODuration(tc.input)
		if err != nil {
			t.Errorf("ParseISODuration(%q): %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseISODuration(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
	if _, err := ParseISODuration("garbage"); err == nil {
		t.Error("expected error for unrecognized duration")
	}
}
