// Package logging configures log/slog output for tubeindex and provides
// attribute helpers plus context-derived structured fields (stage,
// video_id, run_id) shared across pipeline components.
package logging
