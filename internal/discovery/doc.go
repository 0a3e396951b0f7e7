// Package discovery seeds the pipeline working set from a channel's
// uploads playlist.
package discovery
