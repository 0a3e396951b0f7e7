package transcription

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"tubeindex/internal/artifacts"
	"tubeindex/internal/config"
	"tubeindex/internal/proxy"
	"tubeindex/internal/services"
	"tubeindex/internal/state"
)

type fakeSource struct {
	results []error
	proxies []string
	calls   int
}

func (f *fakeSource) FetchCaptions(ctx context.Context, videoID string, proxyURL *url.URL) ([]artifacts.CaptionSegment, error) {
	host := ""
	if proxyURL != nil {
		host = proxyURL.Host
	}
	f.proxies = append(f.proxies, host)
	var err error
	if f.calls < len(f.results) {
		err = f.results[f.calls]
	}
	f.calls++
	if err != nil {
		return nil, err
	}
	return []artifacts.CaptionSegment{
		{Start: 0, End: 2.5, Text: "hello"},
		{Start: 2.5, End: 5, Text: "world"},
	}, nil
}

func newTestHandler(t *testing.T, source CaptionSource, proxyURLs ...string) (*Handler, *artifacts.Store) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Transcripts.MaxAttempts = 3
	cfg.Transcripts.BackoffBaseMilli = 1
	cfg.Transcripts.BackoffMaxMilli = 2
	cfg.Proxy.URLs = proxyURLs

	pool, err := proxy.NewPool(cfg.Proxy)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	store := artifacts.NewStore(&cfg)
	handler := NewHandler(&cfg, source, pool, store, nil)
	handler.sleeper = func(context.Context, time.Duration) error { return nil }
	handler.jitter = func() float64 { return 0 }
	return handler, store
}

func video(id string) *state.Video {
	return &state.Video{VideoID: id, CaptionAvailable: true}
}

func TestExecuteSavesTranscriptOnFirstAttempt(t *testing.T) {
	source := &fakeSource{}
	handler, store := newTestHandler(t, source, "http://proxy-a:8080")

	if err := handler.Execute(context.Background(), video("vid01")); err != nil {
		t.Fatalf("execute: %v", err)
	}
	record, err := store.LoadTranscript("vid01")
	if err != nil {
		t.Fatalf("load transcript: %v", err)
	}
	if record.RawText != "hello world" || len(record.Segments) != 2 {
		t.Errorf("unexpected transcript: %+v", record)
	}
}

func TestExecuteRotatesProxiesAcrossAttempts(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "transcription", "fetch_captions", "connect refused", nil)
	source := &fakeSource{results: []error{transient, transient, nil}}
	handler, _ := newTestHandler(t, source,
		"http://proxy-a:8080", "http://proxy-b:8080", "http://proxy-c:8080")

	if err := handler.Execute(context.Background(), video("vid02")); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if source.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", source.calls)
	}
	for i := 1; i < len(source.proxies); i++ {
		if source.proxies[i] == source.proxies[i-1] {
			t.Errorf("attempt %d reused proxy %q", i+1, source.proxies[i])
		}
	}
}

func TestExecuteStopsOnPermanentError(t *testing.T) {
	permanent := services.Wrap(services.ErrPermanentContent, "transcription", "fetch_captions", "captions disabled", nil)
	source := &fakeSource{results: []error{permanent}}
	handler, _ := newTestHandler(t, source, "http://proxy-a:8080")

	err := handler.Execute(context.Background(), video("vid03"))
	if !errors.Is(err, services.ErrPermanentContent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if source.calls != 1 {
		t.Errorf("permanent failures must not be retried, got %d attempts", source.calls)
	}
}

func TestExecuteBoundsAttempts(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "transcription", "fetch_captions", "timeout", nil)
	source := &fakeSource{results: []error{transient, transient, transient, transient}}
	handler, _ := newTestHandler(t, source, "http://proxy-a:8080", "http://proxy-b:8080")

	err := handler.Execute(context.Background(), video("vid04"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error after exhaustion, got %v", err)
	}
	if source.calls != 3 {
		t.Errorf("expected exactly max_attempts=3 attempts, got %d", source.calls)
	}
}

func TestExecuteWaitsOutProxyCooldown(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "transcription", "fetch_captions", "timeout", nil)
	source := &fakeSource{results: []error{transient, transient, transient}}

	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Transcripts.MaxAttempts = 3
	cfg.Transcripts.BackoffBaseMilli = 1
	cfg.Transcripts.BackoffMaxMilli = 2
	cfg.Proxy.URLs = []string{"http://proxy-a:8080"}
	cfg.Proxy.MaxFailures = 1
	cfg.Proxy.CooldownSeconds = 300

	pool, err := proxy.NewPool(cfg.Proxy)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	handler := NewHandler(&cfg, source, pool, artifacts.NewStore(&cfg), nil)
	sleeps := 0
	handler.sleeper = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}
	handler.jitter = func() float64 { return 0 }

	// The sole proxy enters cooldown after its first failure; the
	// remaining attempts must still wait out their backoff windows
	// rather than failing the item at the first empty acquisition.
	err = handler.Execute(context.Background(), video("vid07"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error after exhaustion, got %v", err)
	}
	if source.calls != 1 {
		t.Errorf("expected a single fetch before cooldown, got %d", source.calls)
	}
	if sleeps != 2 {
		t.Errorf("expected backoff between all remaining attempts, got %d sleeps", sleeps)
	}
}

func TestExecuteWorksWithoutProxies(t *testing.T) {
	source := &fakeSource{}
	handler, _ := newTestHandler(t, source)

	if err := handler.Execute(context.Background(), video("vid05")); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if source.proxies[0] != "" {
		t.Errorf("expected direct fetch, got proxy %q", source.proxies[0])
	}
}

func TestPrepareRejectsVideosWithoutCaptions(t *testing.T) {
	handler, _ := newTestHandler(t, &fakeSource{}, "http://proxy-a:8080")

	err := handler.Prepare(context.Background(), &state.Video{VideoID: "vid06"})
	if !errors.Is(err, services.ErrPermanentContent) {
		t.Errorf("expected permanent error for caption-less video, got %v", err)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	handler, _ := newTestHandler(t, &fakeSource{}, "http://proxy-a:8080")
	handler.cfg.BackoffBaseMilli = 1000
	handler.cfg.BackoffMaxMilli = 5000

	first := handler.backoff(1)
	second := handler.backoff(2)
	if first != time.Second {
		t.Errorf("expected 1s base delay, got %v", first)
	}
	if second != 2*time.Second {
		t.Errorf("expected doubled delay, got %v", second)
	}
	if capped := handler.backoff(10); capped > 5*time.Second {
		t.Errorf("expected delay capped at 5s, got %v", capped)
	}
}
