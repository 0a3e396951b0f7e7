// Package metadata enriches discovered videos with per-video detail
// from the YouTube Data API.
package metadata
