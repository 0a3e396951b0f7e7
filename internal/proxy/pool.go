package proxy

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"tubeindex/internal/config"
)

// ErrNoHealthyProxy is returned when every proxy is cooling down.
var ErrNoHealthyProxy = errors.New("no healthy proxy available")

// ErrEmptyPool is returned when no proxies are configured.
var ErrEmptyPool = errors.New("proxy pool is empty")

// Endpoint is one outbound proxy with its health bookkeeping.
type Endpoint struct {
	// URL is the full proxy endpoint including credentials.
	URL *url.URL

	consecutiveFailures int
	unhealthyUntil      time.Time
}

// Key returns a stable identifier for the endpoint (host:port), safe to
// log without leaking credentials.
func (e *Endpoint) Key() string {
	if e == nil || e.URL == nil {
		return ""
	}
	return e.URL.Host
}

// Pool rotates outbound proxies round-robin with health tracking.
// A proxy that fails maxFailures times in a row is excluded for the
// cooldown window, then reinstated. Safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*Endpoint
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// NewPool parses the configured proxy URLs into a rotating pool.
func NewPool(cfg config.Proxy) (*Pool, error) {
	endpoints := make([]*Endpoint, 0, len(cfg.URLs))
	for _, raw := range cfg.URLs {
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		if parsed.Host == "" {
			return nil, fmt.Errorf("proxy url %q has no host", raw)
		}
		endpoints = append(endpoints, &Endpoint{URL: parsed})
	}
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 3
	}
	cooldown := time.Duration(cfg.CooldownSeconds) * time.Second
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &Pool{
		endpoints:   endpoints,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}, nil
}

// Size returns the number of configured proxies, healthy or not.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Acquire returns the next healthy proxy in rotation, skipping the
// endpoint identified by excludeKey when any healthy alternative
// exists. Proxies whose cooldown has elapsed are reinstated on the way.
func (p *Pool) Acquire(excludeKey string) (*Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return nil, ErrEmptyPool
	}

	now := p.now()
	var fallback *Endpoint
	for i := 0; i < len(p.endpoints); i++ {
		candidate := p.endpoints[(p.next+i)%len(p.endpoints)]
		if !candidate.unhealthyUntil.IsZero() {
			if now.Before(candidate.unhealthyUntil) {
				continue
			}
			// Cooldown elapsed; reinstate.
			candidate.unhealthyUntil = time.Time{}
			candidate.consecutiveFailures = 0
		}
		if candidate.Key() == excludeKey {
			if fallback == nil {
				fallback = candidate
			}
			continue
		}
		p.next = (p.next + i + 1) % len(p.endpoints)
		return candidate, nil
	}
	if fallback != nil {
		// Only the excluded proxy is healthy; reuse it rather than stall.
		p.next = (p.next + 1) % len(p.endpoints)
		return fallback, nil
	}
	return nil, ErrNoHealthyProxy
}

// ReportSuccess resets the failure streak for an endpoint.
func (p *Pool) ReportSuccess(endpoint *Endpoint) {
	if endpoint == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	endpoint.consecutiveFailures = 0
	endpoint.unhealthyUntil = time.Time{}
}

// ReportFailure records a failure; the endpoint enters cooldown once the
// consecutive-failure threshold is reached.
func (p *Pool) ReportFailure(endpoint *Endpoint) {
	if endpoint == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	endpoint.consecutiveFailures++
	if endpoint.consecutiveFailures >= p.maxFailures {
		endpoint.unhealthyUntil = p.now().Add(p.cooldown)
		endpoint.consecutiveFailures = 0
	}
}

// HealthyCount returns the number of endpoints currently in rotation.
func (p *Pool) HealthyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	count := 0
	for _, endpoint := range p.endpoints {
		if endpoint.unhealthyUntil.IsZero() || !now.Before(endpoint.unhealthyUntil) {
			count++
		}
	}
	return count
}
