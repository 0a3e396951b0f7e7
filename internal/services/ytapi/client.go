package ytapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tubeindex/internal/config"
	"tubeindex/internal/services"
)

const (
	defaultBaseURL     = "https://www.googleapis.com/youtube/v3"
	defaultHTTPTimeout = 30 * time.Second
	pageSize           = 50
)

// Channel identifies a resolved channel and its uploads playlist.
type Channel struct {
	ChannelID       string
	Title           string
	UploadsPlaylist string
}

// VideoMetadata is the per-video detail fetched from the videos endpoint.
type VideoMetadata struct {
	VideoID          string
	Title            string
	PublishedAt      time.Time
	DurationSeconds  int64
	ChannelTitle     string
	ThumbnailURL     string
	CaptionAvailable bool
}

// Client talks to the YouTube Data API v3.
type Client struct {
	cfg        config.YouTube
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL (useful for tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// NewClient constructs a YouTube Data API client.
func NewClient(cfg config.YouTube, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	if cfg.RequestsPerMinute > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// ResolveChannel looks up the configured channel and returns its uploads
// playlist. The channel id takes precedence; the handle is a fallback.
func (c *Client) ResolveChannel(ctx context.Context) (Channel, error) {
	if err := c.requireKey(); err != nil {
		return Channel{}, err
	}

	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	switch {
	case c.cfg.ChannelID != "":
		params.Set("id", c.cfg.ChannelID)
	case c.cfg.ChannelHandle != "":
		params.Set("forHandle", c.cfg.ChannelHandle)
	default:
		return Channel{}, services.Wrap(services.ErrConfiguration, "discovery", "resolve_channel",
			"channel id or handle required", nil)
	}

	var response struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
			ContentDetails struct {
				RelatedPlaylists struct {
					Uploads string `json:"uploads"`
				} `json:"relatedPlaylists"`
			} `json:"contentDetails"`
		} `json:"items"`
	}
	if err := c.get(ctx, "channels", params, &response); err != nil {
		return Channel{}, err
	}
	if len(response.Items) == 0 {
		return Channel{}, services.Wrap(services.ErrNotFound, "discovery", "resolve_channel",
			"channel not found", nil)
	}
	item := response.Items[0]
	uploads := item.ContentDetails.RelatedPlaylists.Uploads
	if uploads == "" {
		// Every channel's uploads playlist is its UC id with a UU prefix.
		if strings.HasPrefix(item.ID, "UC") {
			uploads = "UU" + item.ID[2:]
		}
	}
	if uploads == "" {
		return Channel{}, services.Wrap(services.ErrNotFound, "discovery", "resolve_channel",
			fmt.Sprintf("channel %s has no uploads playlist", item.ID), nil)
	}
	return Channel{
		ChannelID:       item.ID,
		Title:           item.Snippet.Title,
		UploadsPlaylist: uploads,
	}, nil
}

// ListUploads pages through the uploads playlist and returns video ids
// in playlist order (newest first). A limit of zero means all.
func (c *Client) ListUploads(ctx context.Context, playlistID string, limit int) ([]string, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	if playlistID == "" {
		return nil, services.Wrap(services.ErrValidation, "discovery", "list_uploads",
			"playlist id required", nil)
	}

	var (
		videoIDs  []string
		pageToken string
	)
	for {
		params := url.Values{}
		params.Set("part", "contentDetails")
		params.Set("playlistId", playlistID)
		params.Set("maxResults", fmt.Sprintf("%d", pageSize))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var response struct {
			Items []struct {
				ContentDetails struct {
					VideoID string `json:"videoId"`
				} `json:"contentDetails"`
			} `json:"items"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := c.get(ctx, "playlistItems", params, &response); err != nil {
			return nil, err
		}
		for _, item := range response.Items {
			if item.ContentDetails.VideoID == "" {
				continue
			}
			videoIDs = append(videoIDs, item.ContentDetails.VideoID)
			if limit > 0 && len(videoIDs) >= limit {
				return videoIDs, nil
			}
		}
		if response.NextPageToken == "" {
			return videoIDs, nil
		}
		pageToken = response.NextPageToken
	}
}

// FetchMetadata loads snippet and content details for the given video
// ids, batching up to 50 ids per request. Videos the API no longer
// returns (deleted or private) are silently absent from the result.
func (c *Client) FetchMetadata(ctx context.Context, videoIDs []string) ([]VideoMetadata, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	if len(videoIDs) == 0 {
		return nil, nil
	}

	var results []VideoMetadata
	for start := 0; start < len(videoIDs); start += pageSize {
		end := start + pageSize
		if end > len(videoIDs) {
			end = len(videoIDs)
		}
		params := url.Values{}
		params.Set("part", "snippet,contentDetails")
		params.Set("id", strings.Join(videoIDs[start:end], ","))

		var response struct {
			Items []struct {
				ID      string `json:"id"`
				Snippet struct {
					Title        string `json:"title"`
					PublishedAt  string `json:"publishedAt"`
					ChannelTitle string `json:"channelTitle"`
					Thumbnails   map[string]struct {
						URL string `json:"url"`
					} `json:"thumbnails"`
				} `json:"snippet"`
				ContentDetails struct {
					Duration string `json:"duration"`
					Caption  string `json:"caption"`
				} `json:"contentDetails"`
			} `json:"items"`
		}
		if err := c.get(ctx, "videos", params, &response); err != nil {
			return nil, err
		}

		for _, item := range response.Items {
			published, _ := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
			duration, err := ParseISODuration(item.ContentDetails.Duration)
			if err != nil {
				duration = 0
			}
			results = append(results, VideoMetadata{
				VideoID:          item.ID,
				Title:            item.Snippet.Title,
				PublishedAt:      published,
				DurationSeconds:  duration,
				ChannelTitle:     item.Snippet.ChannelTitle,
				ThumbnailURL:     pickThumbnail(item.Snippet.Thumbnails),
				CaptionAvailable: item.ContentDetails.Caption == "true",
			})
		}
	}
	return results, nil
}

// HealthCheck verifies the API key is present.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.requireKey()
}

func (c *Client) requireKey() error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return services.Wrap(services.ErrConfiguration, "discovery", "request", "youtube api key required", nil)
	}
	return nil
}

func pickThumbnail(thumbnails map[string]struct {
	URL string `json:"url"`
}) string {
	for _, quality := range []string{"high", "medium", "default"} {
		if thumb, ok := thumbnails[quality]; ok && thumb.URL != "" {
			return thumb.URL
		}
	}
	return ""
}

func (c *Client) get(ctx context.Context, resource string, params url.Values, target any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	params.Set("key", c.cfg.APIKey)
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, resource, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("youtube request: new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return services.Wrap(services.ErrTransient, "discovery", resource, "", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "discovery", resource, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return classifyStatus(resource, resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return services.Wrap(services.ErrValidation, "discovery", resource, "decode response", err)
	}
	return nil
}

// classifyStatus maps API errors to failure sentinels. Quota exhaustion
// arrives as 403 with a quotaExceeded reason, distinct from key errors.
func classifyStatus(resource string, status int, body []byte) error {
	var apiError struct {
		Error struct {
			Message string `json:"message"`
			Errors  []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &apiError)
	detail := fmt.Sprintf("http %d: %s", status, strings.TrimSpace(apiError.Error.Message))

	reason := ""
	if len(apiError.Error.Errors) > 0 {
		reason = apiError.Error.Errors[0].Reason
	}
	switch {
	case status == http.StatusTooManyRequests:
		return services.Wrap(services.ErrRateLimit, "discovery", resource, detail, nil)
	case status == http.StatusForbidden && strings.Contains(reason, "quota"):
		return services.Wrap(services.ErrRateLimit, "discovery", resource, detail, nil)
	case status == http.StatusForbidden || status == http.StatusUnauthorized || status == http.StatusBadRequest:
		return services.Wrap(services.ErrConfiguration, "discovery", resource, detail, nil)
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "discovery", resource, detail, nil)
	case status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "discovery", resource, detail, nil)
	default:
		return services.Wrap(services.ErrValidation, "discovery", resource, detail, nil)
	}
}
