// Package services holds the cross-cutting error taxonomy and context
// annotation helpers shared by stage workers and external-service
// clients. Sentinel markers attached via Wrap drive the orchestrator's
// failure classification (retryable vs permanent vs run-fatal).
package services
