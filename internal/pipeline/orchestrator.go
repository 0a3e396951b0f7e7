package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tubeindex/internal/config"
	"tubeindex/internal/logging"
	"tubeindex/internal/services"
	"tubeindex/internal/stage"
	"tubeindex/internal/state"
)

// ErrRunLocked is returned when another pipeline run holds the run lock.
var ErrRunLocked = errors.New("another pipeline run is active")

// ErrFailureRateExceeded is returned when a stage run fails more items
// than the configured threshold allows.
var ErrFailureRateExceeded = errors.New("stage failure rate exceeded threshold")

// Options control candidate selection for a stage run.
type Options struct {
	// Limit caps the number of items processed; zero means no cap.
	Limit int
	// RetryBlocked selects failed_retryable items alongside pending
	// ones and leaves done items untouched.
	RetryBlocked bool
	// Incremental selects only items not yet done for the stage.
	Incremental bool
	// Test caps the run at the configured test limit for cheap dry runs.
	Test bool
}

// Summary is the per-run outcome report for one stage.
type Summary struct {
	Stage    state.Stage
	RunID    string
	Selected int
	Done     int
	Failed   int
	Skipped  int
	Duration time.Duration
}

// FailureRate returns the fraction of processed items that failed.
func (s Summary) FailureRate() float64 {
	processed := s.Done + s.Failed
	if processed == 0 {
		return 0
	}
	return float64(s.Failed) / float64(processed)
}

// Orchestrator drives the pipeline stages over the working set,
// consulting the state store to skip completed work and persisting
// every per-item outcome before moving on.
type Orchestrator struct {
	cfg      *config.Config
	store    *state.Store
	seeder   stage.Seeder
	handlers map[state.Stage]stage.Handler
	logger   *slog.Logger
	lock     *flock.Flock
}

// New builds an orchestrator over the given seeder and stage handlers.
func New(cfg *config.Config, store *state.Store, seeder stage.Seeder, handlers []stage.Handler, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	byStage := make(map[state.Stage]stage.Handler, len(handlers))
	for _, handler := range handlers {
		byStage[handler.Stage()] = handler
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		seeder:   seeder,
		handlers: byStage,
		logger:   logger.With(logging.String(logging.FieldComponent, "pipeline")),
		lock:     flock.New(filepath.Join(cfg.Paths.DataDir, "tubeindex.lock")),
	}
}

// RunStage executes one pipeline stage under the run lock.
func (o *Orchestrator) RunStage(ctx context.Context, target state.Stage, opts Options) (Summary, error) {
	release, err := o.acquireLock()
	if err != nil {
		return Summary{}, err
	}
	defer release()
	return o.runStage(ctx, target, opts)
}

// RunAll executes every stage in dependency order under a single run
// lock, stopping at the first fatal stage error.
func (o *Orchestrator) RunAll(ctx context.Context, opts Options) ([]Summary, error) {
	release, err := o.acquireLock()
	if err != nil {
		return nil, err
	}
	defer release()

	var summaries []Summary
	for _, target := range state.Stages() {
		summary, err := o.runStage(ctx, target, opts)
		summaries = append(summaries, summary)
		if err != nil {
			return summaries, fmt.Errorf("stage %s: %w", target, err)
		}
	}
	return summaries, nil
}

// Health reports readiness of every registered stage worker.
func (o *Orchestrator) Health(ctx context.Context) []stage.Health {
	var checks []stage.Health
	if o.seeder != nil {
		checks = append(checks, o.seeder.HealthCheck(ctx))
	}
	for _, target := range state.Stages() {
		if handler, ok := o.handlers[target]; ok {
			checks = append(checks, handler.HealthCheck(ctx))
		}
	}
	return checks
}

func (o *Orchestrator) acquireLock() (func(), error) {
	locked, err := o.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, ErrRunLocked
	}
	return func() {
		if err := o.lock.Unlock(); err != nil {
			o.logger.Warn("release run lock", logging.Error(err))
		}
	}, nil
}

func (o *Orchestrator) runStage(ctx context.Context, target state.Stage, opts Options) (Summary, error) {
	runID := uuid.NewString()[:8]
	ctx = services.WithRunID(ctx, runID)
	ctx = services.WithStage(ctx, string(target))
	logger := o.logger.With(
		logging.String(logging.FieldRunID, runID),
		logging.String(logging.FieldStage, string(target)))

	started := time.Now()
	summary := Summary{Stage: target, RunID: runID}

	// Items left in_progress by a crashed run go back to pending.
	if reset, err := o.store.ResetStuckInProgress(ctx); err != nil {
		return summary, err
	} else if reset > 0 {
		logger.Info("reset stuck items", logging.Int64("items", reset))
	}

	limit := o.effectiveLimit(opts)
	logger.Info("stage run starting",
		logging.Int("limit", limit),
		logging.Bool("incremental", opts.Incremental),
		logging.Bool("retry_blocked", opts.RetryBlocked),
		logging.Bool("test", opts.Test))

	var err error
	if target == state.StageDiscovery {
		err = o.runDiscovery(ctx, logger, limit, &summary)
	} else {
		err = o.runItemStage(ctx, logger, target, opts, limit, &summary)
	}
	summary.Duration = time.Since(started)
	if err != nil {
		return summary, err
	}

	logger.Info("stage run finished",
		logging.Int("selected", summary.Selected),
		logging.Int("done", summary.Done),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Duration("duration", summary.Duration))

	if threshold := o.cfg.Pipeline.FailureRateThreshold; threshold > 0 && summary.FailureRate() > threshold {
		return summary, fmt.Errorf("%w: %.0f%% of %d items failed",
			ErrFailureRateExceeded, summary.FailureRate()*100, summary.Done+summary.Failed)
	}
	return summary, nil
}

// runDiscovery seeds the working set. Already-known videos count as
// skipped; new ones are inserted with discovery marked done.
func (o *Orchestrator) runDiscovery(ctx context.Context, logger *slog.Logger, limit int, summary *Summary) error {
	videos, err := o.seeder.Discover(ctx, limit)
	if err != nil {
		return err
	}
	summary.Selected = len(videos)

	for _, video := range videos {
		existing, err := o.store.GetVideo(ctx, video.VideoID)
		if err != nil {
			return err
		}
		if existing != nil {
			summary.Skipped++
			continue
		}
		if err := o.store.UpsertVideo(ctx, video); err != nil {
			return err
		}
		if err := o.store.SetStatus(ctx, video.VideoID, state.StageDiscovery, state.StatusDone, ""); err != nil {
			return err
		}
		summary.Done++
	}
	logger.Info("discovery complete",
		logging.Int("new", summary.Done),
		logging.Int("known", summary.Skipped))
	return nil
}

func (o *Orchestrator) runItemStage(ctx context.Context, logger *slog.Logger, target state.Stage, opts Options, limit int, summary *Summary) error {
	handler, ok := o.handlers[target]
	if !ok {
		return fmt.Errorf("no handler registered for stage %s", target)
	}

	candidates, err := o.store.ListCandidates(ctx, target, state.CandidateFilter{
		Incremental:  opts.Incremental,
		RetryBlocked: opts.RetryBlocked,
		Limit:        limit,
	})
	if err != nil {
		return err
	}
	summary.Selected = len(candidates)

	// Skipped counts eligible items the filter left alone because they
	// are already done. Full reruns re-select done items, so nothing is
	// skipped there.
	if opts.Incremental || opts.RetryBlocked {
		done, err := o.store.CountEligibleDone(ctx, target)
		if err != nil {
			return err
		}
		summary.Skipped = done
	}

	if len(candidates) == 0 {
		logger.Info("nothing to do")
		return nil
	}

	var (
		mu    sync.Mutex
		group *errgroup.Group
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.stageWorkers(target))

	for _, videoID := range candidates {
		videoID := videoID
		group.Go(func() error {
			outcome, err := o.processItem(groupCtx, logger, handler, target, videoID)
			if err != nil {
				// Fatal errors abort the whole run; the in-flight item
				// keeps its failed status.
				return err
			}
			mu.Lock()
			if outcome {
				summary.Done++
			} else {
				summary.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	return group.Wait()
}

// processItem runs one candidate through the handler and persists the
// outcome immediately. It returns (true, nil) for success, (false, nil)
// for a recorded per-item failure, and a non-nil error only when the
// whole run must stop.
func (o *Orchestrator) processItem(ctx context.Context, logger *slog.Logger, handler stage.Handler, target state.Stage, videoID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	itemCtx := services.WithVideoID(ctx, videoID)

	video, err := o.store.GetVideo(itemCtx, videoID)
	if err != nil {
		return false, err
	}
	if video == nil {
		return false, fmt.Errorf("candidate %s has no video row", videoID)
	}

	prior, err := o.store.GetStatus(itemCtx, videoID, target)
	if err != nil {
		return false, err
	}

	if err := o.store.MarkInProgress(itemCtx, videoID, target); err != nil {
		return false, err
	}

	err = handler.Prepare(itemCtx, video)
	if err == nil {
		err = handler.Execute(itemCtx, video)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		if services.IsFatal(err) {
			// Leave the item retryable; the run itself is misconfigured.
			if setErr := o.store.SetStatus(itemCtx, videoID, target, state.StatusFailedRetryable, err.Error()); setErr != nil {
				logger.Error("persist status", logging.String(logging.FieldVideoID, videoID), logging.Error(setErr))
			}
			return false, err
		}
		status := services.FailureStatus(err)
		if setErr := o.store.SetStatus(itemCtx, videoID, target, status, err.Error()); setErr != nil {
			return false, setErr
		}
		logger.Warn("item failed",
			logging.String(logging.FieldVideoID, videoID),
			logging.String("status", string(status)),
			logging.Error(err))
		return false, nil
	}

	if err := o.store.SetStatus(itemCtx, videoID, target, state.StatusDone, ""); err != nil {
		return false, err
	}

	// Regenerating an artifact invalidates everything derived from it.
	if prior.Status == state.StatusDone {
		if invalidated, err := o.store.InvalidateDownstream(itemCtx, videoID, target); err != nil {
			return false, err
		} else if invalidated > 0 {
			logger.Info("invalidated downstream stages",
				logging.String(logging.FieldVideoID, videoID),
				logging.Int64("stages", invalidated))
		}
	}
	return true, nil
}

// effectiveLimit folds the --test cap into the explicit limit.
func (o *Orchestrator) effectiveLimit(opts Options) int {
	limit := opts.Limit
	if opts.Test {
		testLimit := o.cfg.Pipeline.TestLimit
		if limit == 0 || testLimit < limit {
			limit = testLimit
		}
	}
	return limit
}

// stageWorkers returns the per-stage concurrency. Only transcript
// fetching is parallel; the other stages are local or batched already.
func (o *Orchestrator) stageWorkers(target state.Stage) int {
	if target == state.StageTranscription && o.cfg.Transcripts.Workers > 1 {
		return o.cfg.Transcripts.Workers
	}
	return 1
}
