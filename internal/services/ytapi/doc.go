// Package ytapi provides a client for the YouTube Data API v3: channel
// resolution, uploads playlist enumeration, and batched video metadata.
package ytapi
