// Package embedding turns chunk text into vectors, reusing vectors for
// unchanged content hashes across runs.
package embedding
