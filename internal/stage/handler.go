package stage

import (
	"context"

	"tubeindex/internal/state"
)

// Handler describes the contract the orchestrator needs from each
// per-item stage worker. Prepare validates inputs cheaply; Execute does
// the work and must leave a verified non-empty artifact behind before
// returning nil.
type Handler interface {
	Stage() state.Stage
	Prepare(context.Context, *state.Video) error
	Execute(context.Context, *state.Video) error
	HealthCheck(context.Context) Health
}

// Seeder is implemented by the discovery stage, which creates the
// working set instead of consuming it.
type Seeder interface {
	Discover(ctx context.Context, limit int) ([]*state.Video, error)
	HealthCheck(context.Context) Health
}
