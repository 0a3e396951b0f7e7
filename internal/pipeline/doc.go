// Package pipeline orchestrates the ingestion stages over the working
// set: candidate selection, per-item execution, incremental status
// persistence, and run summaries.
package pipeline
