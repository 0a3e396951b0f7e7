package captions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tubeindex/internal/services"
)

func watchPage(trackJSON string) string {
	return fmt.Sprintf(`<html><script>var ytInitialPlayerResponse = {"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":%s}},"playabilityStatus":{"status":"OK"}};</script></html>`, trackJSON)
}

func TestFetchCaptionsParsesTrack(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	trackURL := server.URL + "/api/timedtext?v=vid1&lang=en"
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("v"); got != "vid1" {
			t.Errorf("expected video id vid1, got %q", got)
		}
		track := fmt.Sprintf(`[{"baseUrl":%q,"languageCode":"en"}]`, trackURL)
		w.Write([]byte(watchPage(track)))
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("fmt"); got != "json3" {
			t.Errorf("expected fmt=json3, got %q", got)
		}
		w.Write([]byte(`{"events":[{"tStartMs":0,"dDurationMs":2500,"segs":[{"utf8":"hello "},{"utf8":"there"}]},{"tStartMs":2500,"dDurationMs":3000,"segs":[{"utf8":"world"}]}]}`))
	})

	client := NewClient(WithBaseURL(server.URL + "/watch?v="))
	segments, err := client.FetchCaptions(context.Background(), "vid1", nil)
	if err != nil {
		t.Fatalf("fetch captions: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Text != "hello there" || segments[0].Start != 0 || segments[0].End != 2.5 {
		t.Errorf("unexpected first segment: %+v", segments[0])
	}
	if segments[1].Start != 2.5 || segments[1].End != 5.5 {
		t.Errorf("unexpected second segment bounds: %+v", segments[1])
	}
}

func TestFetchCaptionsDisabledIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>no caption tracks here</html>`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL + "/watch?v="))
	_, err := client.FetchCaptions(context.Background(), "vid2", nil)
	if !errors.Is(err, services.ErrPermanentContent) {
		t.Errorf("expected permanent content error, got %v", err)
	}
}

func TestFetchCaptionsUnavailableVideoIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>{"playabilityStatus":{"status":"ERROR","reason":"Video unavailable"}}</html>`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL + "/watch?v="))
	_, err := client.FetchCaptions(context.Background(), "vid3", nil)
	if !errors.Is(err, services.ErrPermanentContent) {
		t.Errorf("expected permanent content error, got %v", err)
	}
}

func TestFetchCaptionsServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL + "/watch?v="))
	_, err := client.FetchCaptions(context.Background(), "vid4", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestFetchCaptionsNotFoundIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL + "/watch?v="))
	_, err := client.FetchCaptions(context.Background(), "vid5", nil)
	if !errors.Is(err, services.ErrPermanentContent) {
		t.Errorf("expected permanent content error, got %v", err)
	}
}

func TestFetchCaptionsEmptyTrackIsPermanent(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	trackURL := server.URL + "/api/timedtext"
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		track := fmt.Sprintf(`[{"baseUrl":%q,"languageCode":"en"}]`, trackURL)
		w.Write([]byte(watchPage(track)))
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"events":[]}`))
	})

	client := NewClient(WithBaseURL(server.URL + "/watch?v="))
	_, err := client.FetchCaptions(context.Background(), "vid6", nil)
	if !errors.Is(err, services.ErrPermanentContent) {
		t.Errorf("expected permanent content error, got %v", err)
	}
}

func TestSelectTrackPrefersManualEnglish(t *testing.T) {
	page := watchPage(`[{"baseUrl":"https://example.com/asr","languageCode":"en","kind":"asr"},{"baseUrl":"https://example.com/manual","languageCode":"en"}]`)
	track, err := selectTrack([]byte(page), "vid7")
	if err != nil {
		t.Fatalf("select track: %v", err)
	}
	if track.BaseURL != "https://example.com/manual" {
		t.Errorf("expected manual track, got %q", track.BaseURL)
	}
}

func TestSelectTrackFallsBackToASR(t *testing.T) {
	page := watchPage(`[{"baseUrl":"https://example.com/fr","languageCode":"fr"},{"baseUrl":"https://example.com/asr","languageCode":"en","kind":"asr"}]`)
	track, err := selectTrack([]byte(page), "vid8")
	if err != nil {
		t.Fatalf("select track: %v", err)
	}
	if track.BaseURL != "https://example.com/asr" {
		t.Errorf("expected asr english track, got %q", track.BaseURL)
	}
}
