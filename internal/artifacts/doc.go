// Package artifacts defines the derived per-video records produced by
// the pipeline (transcripts, chunks, embeddings) and their JSON file
// store under the data directory.
package artifacts
