// Package captions fetches YouTube caption tracks through rotating
// outbound proxies and normalizes them into timed segments.
package captions
