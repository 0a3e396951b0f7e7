// Package chunking groups transcript captions into bounded-duration
// chunks, the atomic unit indexed for semantic search.
package chunking
