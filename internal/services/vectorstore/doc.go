// Package vectorstore provides a client for a Pinecone-compatible
// vector index: idempotent upserts keyed by content hash, existence
// checks, nearest-neighbor queries, and index stats.
package vectorstore
