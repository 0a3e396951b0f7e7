package captions

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

	"tubeindex/internal/artifacts"
	"tubeindex/internal/services"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	watchURL           = "https://www.youtube.com/watch?v="
	// A desktop user agent; YouTube serves a reduced page without one.
	userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

// Client fetches caption tracks for a video from the transcript source.
// Every request goes out through the proxy supplied per call, so the
// caller controls rotation.
type Client struct {
	timeout   time.Duration
	baseURL   string
	transport func(proxyURL *url.URL) http.RoundTripper
}

// Option customizes the client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithBaseURL overrides the watch page base URL (useful for tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithTransport overrides how the per-proxy transport is built (useful
// for tests).
func WithTransport(build func(proxyURL *url.URL) http.RoundTripper) Option {
	return func(c *Client) {
		if build != nil {
			c.transport = build
		}
	}
}

// NewClient constructs a caption source client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		timeout: defaultHTTPTimeout,
		baseURL: watchURL,
		transport: func(proxyURL *url.URL) http.RoundTripper {
			transport := &http.Transport{}
			if proxyURL != nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
			return transport
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// FetchCaptions downloads the caption track for a video through the
// given proxy and returns normalized segments in playback order.
// Captions disabled by the uploader and removed videos are permanent
// failures; everything else is transient.
func (c *Client) FetchCaptions(ctx context.Context, videoID string, proxyURL *url.URL) ([]artifacts.CaptionSegment, error) {
	if videoID == "" {
		return nil, services.Wrap(services.ErrValidation, "transcription", "fetch_captions", "video id required", nil)
	}
	httpClient := &http.Client{
		Timeout:   c.timeout,
		Transport: c.transport(proxyURL),
	}

	page, err := c.fetch(ctx, httpClient, c.baseURL+videoID)
	if err != nil {
		return nil, err
	}

	track, err := selectTrack(page, videoID)
	if err != nil {
		return nil, err
	}

	trackURL := track.BaseURL
	if !strings.Contains(trackURL, "fmt=") {
		separator := "&"
		if !strings.Contains(trackURL, "?") {
			separator = "?"
		}
		trackURL += separator + "fmt=json3"
	}
	raw, err := c.fetch(ctx, httpClient, trackURL)
	if err != nil {
		return nil, err
	}

	segments, err := parseJSON3(raw)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "transcription", "fetch_captions",
			fmt.Sprintf("parse caption track for %s", videoID), err)
	}
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrPermanentContent, "transcription", "fetch_captions",
			fmt.Sprintf("caption track for %s is empty", videoID), nil)
	}
	return segments, nil
}

func (c *Client) fetch(ctx context.Context, httpClient *http.Client, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("caption request: new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "transcription", "fetch_captions", "", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcription", "fetch_captions", "read body", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, services.Wrap(services.ErrPermanentContent, "transcription", "fetch_captions",
			fmt.Sprintf("http %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, services.Wrap(services.ErrRateLimit, "transcription", "fetch_captions",
			fmt.Sprintf("http %d", resp.StatusCode), nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, services.Wrap(services.ErrTransient, "transcription", "fetch_captions",
			fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	return body, nil
}

// selectTrack locates the caption track list embedded in the watch page
// and picks the best track: manually created English first, then any
// English, then the first available.
func selectTrack(page []byte, videoID string) (captionTrack, error) {
	content := string(page)

	if strings.Contains(content, `"status":"ERROR"`) ||
		strings.Contains(content, `"status":"UNPLAYABLE"`) ||
		strings.Contains(content, `"status":"LOGIN_REQUIRED"`) {
		return captionTrack{}, services.Wrap(services.ErrPermanentContent, "transcription", "fetch_captions",
			fmt.Sprintf("video %s is unavailable", videoID), nil)
	}

	marker := `"captionTracks":`
	idx := strings.Index(content, marker)
	if idx < 0 {
		return captionTrack{}, services.Wrap(services.ErrPermanentContent, "transcription", "fetch_captions",
			fmt.Sprintf("captions are disabled for %s", videoID), nil)
	}

	decoder := json.NewDecoder(strings.NewReader(content[idx+len(marker):]))
	var tracks []captionTrack
	if err := decoder.Decode(&tracks); err != nil {
		return captionTrack{}, services.Wrap(services.ErrTransient, "transcription", "fetch_captions",
			fmt.Sprintf("parse caption tracks for %s", videoID), err)
	}
	if len(tracks) == 0 {
		return captionTrack{}, services.Wrap(services.ErrPermanentContent, "transcription", "fetch_captions",
			fmt.Sprintf("captions are disabled for %s", videoID), nil)
	}

	var english *captionTrack
	for i := range tracks {
		track := &tracks[i]
		if !strings.HasPrefix(track.LanguageCode, "en") {
			continue
		}
		if track.Kind != "asr" {
			return *track, nil
		}
		if english == nil {
			english = track
		}
	}
	if english != nil {
		return *english, nil
	}
	return tracks[0], nil
}

type json3Payload struct {
	Events []struct {
		StartMs    int64 `json:"tStartMs"`
		DurationMs int64 `json:"dDurationMs"`
		Segs       []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

func parseJSON3(raw []byte) ([]artifacts.CaptionSegment, error) {
	var payload json3Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	segments := make([]artifacts.CaptionSegment, 0, len(payload.Events))
	for _, event := range payload.Events {
		var builder strings.Builder
		for _, seg := range event.Segs {
			builder.WriteString(seg.UTF8)
		}
		text := artifacts.NormalizeText(builder.String())
		if text == "" {
			continue
		}
		start := float64(event.StartMs) / 1000
		segments = append(segments, artifacts.CaptionSegment{
			Start: start,
			End:   start + float64(event.DurationMs)/1000,
			Text:  text,
		})
	}
	return segments, nil
}
