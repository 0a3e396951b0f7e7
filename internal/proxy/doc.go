// Package proxy manages the rotating outbound proxy pool used for
// transcript extraction. Health transitions are explicit:
// healthy -> unhealthy (consecutive failures) -> cooldown -> healthy.
package proxy
