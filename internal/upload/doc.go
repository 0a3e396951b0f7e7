// Package upload syncs chunk vectors into the vector index with
// idempotent, content-hash-keyed upserts.
package upload
