package services

import (
	"errors"
	"fmt"
	"strings"

	"tubeindex/internal/state"
)

var (
	// ErrTransient marks network and proxy failures worth retrying.
	ErrTransient = errors.New("transient failure")
	// ErrRateLimit marks provider throttling; retryable with longer backoff.
	ErrRateLimit = errors.New("rate limited")
	// ErrPermanentContent marks content that can never be fetched
	// (captions disabled by the uploader, video deleted or private).
	ErrPermanentContent = errors.New("permanent content error")
	// ErrValidation marks malformed or empty stage output.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing credentials or settings; fatal to the run.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks missing upstream artifacts.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging
// it with the provided marker for later status classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a stage error to the status the orchestrator should
// persist for the item. Permanent content failures are never retried;
// everything else stays eligible for --retry-blocked re-runs.
func FailureStatus(err error) state.Status {
	if errors.Is(err, ErrPermanentContent) {
		return state.StatusFailedPermanent
	}
	return state.StatusFailedRetryable
}

// IsFatal reports whether an error must abort the whole stage run rather
// than fail a single item.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsRetryable reports whether an error is worth another attempt within
// the same run (transient network trouble or provider throttling).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimit)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
