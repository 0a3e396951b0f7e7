package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"tubeindex/internal/artifacts"
	"tubeindex/internal/config"
	"tubeindex/internal/logging"
	"tubeindex/internal/proxy"
	"tubeindex/internal/services"
	"tubeindex/internal/stage"
	"tubeindex/internal/state"
)

// CaptionSource fetches raw caption segments for one video through a proxy.
type CaptionSource interface {
	FetchCaptions(ctx context.Context, videoID string, proxyURL *url.URL) ([]artifacts.CaptionSegment, error)
}

// Handler runs the transcription stage. Each video gets up to
// MaxAttempts fetches, each through a different healthy proxy than the
// previous attempt, with exponential backoff and jitter between
// attempts.
type Handler struct {
	cfg     config.Transcripts
	source  CaptionSource
	pool    *proxy.Pool
	store   *artifacts.Store
	logger  *slog.Logger
	sleeper func(context.Context, time.Duration) error
	jitter  func() float64
	now     func() time.Time
}

// NewHandler builds the transcription stage handler.
func NewHandler(cfg *config.Config, source CaptionSource, pool *proxy.Pool, store *artifacts.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		cfg:     cfg.Transcripts,
		source:  source,
		pool:    pool,
		store:   store,
		logger:  logger.With(logging.String(logging.FieldComponent, "transcription")),
		sleeper: sleepContext,
		jitter:  rand.Float64,
		now:     time.Now,
	}
}

// Stage identifies the pipeline stage this handler serves.
func (h *Handler) Stage() state.Stage {
	return state.StageTranscription
}

// Prepare flags videos whose metadata says captions are unavailable.
func (h *Handler) Prepare(ctx context.Context, video *state.Video) error {
	if !video.CaptionAvailable {
		return services.Wrap(services.ErrPermanentContent, "transcription", "prepare",
			fmt.Sprintf("captions disabled for %s", video.VideoID), nil)
	}
	return nil
}

// Execute fetches the video's captions with proxy rotation and persists
// the transcript artifact.
func (h *Handler) Execute(ctx context.Context, video *state.Video) error {
	maxAttempts := h.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var (
		lastErr error
		lastKey string
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		endpoint, err := h.acquire(lastKey)
		if err != nil {
			// Every proxy is cooling down; one may be reinstated before
			// the next attempt, so spend the backoff instead of failing.
			lastErr = err
			h.logger.WarnContext(ctx, "no proxy available",
				logging.String(logging.FieldVideoID, video.VideoID),
				logging.Int("attempt", attempt),
				logging.Error(err))
			if attempt < maxAttempts {
				if err := h.sleeper(ctx, h.backoff(attempt)); err != nil {
					return err
				}
			}
			continue
		}
		var proxyURL *url.URL
		if endpoint != nil {
			proxyURL = endpoint.URL
			lastKey = endpoint.Key()
		}

		segments, err := h.source.FetchCaptions(ctx, video.VideoID, proxyURL)
		if err == nil {
			h.pool.ReportSuccess(endpoint)
			return h.saveTranscript(ctx, video, segments, attempt)
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, services.ErrPermanentContent) {
			// The proxy worked; the content itself is gone.
			h.pool.ReportSuccess(endpoint)
			return err
		}

		h.pool.ReportFailure(endpoint)
		lastErr = err
		h.logger.WarnContext(ctx, "caption fetch failed",
			logging.String(logging.FieldVideoID, video.VideoID),
			logging.Int("attempt", attempt),
			logging.String("proxy", lastKey),
			logging.Error(err))

		if attempt < maxAttempts {
			if err := h.sleeper(ctx, h.backoff(attempt)); err != nil {
				return err
			}
		}
	}

	return services.Wrap(services.ErrTransient, "transcription", "execute",
		fmt.Sprintf("exhausted %d attempts for %s", maxAttempts, video.VideoID), lastErr)
}

// HealthCheck reports proxy pool readiness.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.pool.Size() == 0 {
		// Direct fetching still works, just without rotation.
		return stage.Healthy(string(state.StageTranscription))
	}
	if h.pool.HealthyCount() == 0 {
		return stage.Unhealthy(string(state.StageTranscription), "all proxies cooling down")
	}
	return stage.Healthy(string(state.StageTranscription))
}

// acquire returns the next proxy, or nil when no proxies are configured
// so fetches go out directly.
func (h *Handler) acquire(excludeKey string) (*proxy.Endpoint, error) {
	if h.pool.Size() == 0 {
		return nil, nil
	}
	return h.pool.Acquire(excludeKey)
}

func (h *Handler) saveTranscript(ctx context.Context, video *state.Video, segments []artifacts.CaptionSegment, attempt int) error {
	texts := make([]string, 0, len(segments))
	for _, segment := range segments {
		texts = append(texts, segment.Text)
	}
	record := &artifacts.TranscriptRecord{
		VideoID:   video.VideoID,
		RawText:   artifacts.NormalizeText(strings.Join(texts, " ")),
		FetchedAt: h.now().UTC(),
		Segments:  segments,
	}
	if err := h.store.SaveTranscript(record); err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "fetched transcript",
		logging.String(logging.FieldVideoID, video.VideoID),
		logging.Int("segments", len(segments)),
		logging.Int("attempt", attempt))
	return nil
}

// backoff computes the delay before the next attempt: exponential in
// the attempt number with up to 50% random jitter, capped at the
// configured maximum.
func (h *Handler) backoff(attempt int) time.Duration {
	base := time.Duration(h.cfg.BackoffBaseMilli) * time.Millisecond
	if base <= 0 {
		return 0
	}
	maxDelay := time.Duration(h.cfg.BackoffMaxMilli) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	jittered := delay + time.Duration(h.jitter()*float64(delay)/2)
	if jittered > maxDelay {
		return maxDelay
	}
	return jittered
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
