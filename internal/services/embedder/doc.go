// Package embedder provides a client for OpenAI-compatible embedding
// endpoints with batching, rate limiting, and retry on throttling.
package embedder
