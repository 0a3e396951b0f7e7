// Package stage defines the worker contract between the orchestrator
// and the per-stage implementations.
package stage
