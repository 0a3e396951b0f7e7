package proxy

import (
	"errors"
	"testing"
	"time"

	"tubeindex/internal/config"
)

func newTestPool(t *testing.T, cfg config.Proxy) *Pool {
	t.Helper()
	pool, err := NewPool(cfg)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return pool
}

func TestAcquireRotatesRoundRobin(t *testing.T) {
	pool := newTestPool(t, config.Proxy{
		URLs: []string{"http://a:8080", "http://b:8080", "http://c:8080"},
	})

	var order []string
	for i := 0; i < 6; i++ {
		endpoint, err := pool.Acquire("")
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		order = append(order, endpoint.Key())
	}
	want := []string{"a:8080", "b:8080", "c:8080", "a:8080", "b:8080", "c:8080"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("rotation broken at %d: got %v", i, order)
		}
	}
}

func TestAcquireSkipsExcludedKey(t *testing.T) {
	pool := newTestPool(t, config.Proxy{
		URLs: []string{"http://a:8080", "http://b:8080"},
	})

	first, err := pool.Acquire("")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	second, err := pool.Acquire(first.Key())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if second.Key() == first.Key() {
		t.Errorf("excluded key %s reused despite alternative", first.Key())
	}
}

func TestAcquireFallsBackToExcludedWhenAlone(t *testing.T) {
	pool := newTestPool(t, config.Proxy{URLs: []string{"http://only:8080"}})

	endpoint, err := pool.Acquire("only:8080")
	if err != nil {
		t.Fatalf("expected fallback to sole proxy, got %v", err)
	}
	if endpoint.Key() != "only:8080" {
		t.Errorf("unexpected endpoint %s", endpoint.Key())
	}
}

func TestFailureThresholdTriggersCooldown(t *testing.T) {
	pool := newTestPool(t, config.Proxy{
		URLs:            []string{"http://a:8080", "http://b:8080"},
		MaxFailures:     2,
		CooldownSeconds: 60,
	})
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return now }

	endpoint, _ := pool.Acquire("")
	pool.ReportFailure(endpoint)
	if pool.HealthyCount() != 2 {
		t.Fatalf("single failure must not unhealth: %d", pool.HealthyCount())
	}
	pool.ReportFailure(endpoint)
	if pool.HealthyCount() != 1 {
		t.Fatalf("expected 1 healthy after threshold, got %d", pool.HealthyCount())
	}

	// Cooling proxy is never handed out.
	for i := 0; i < 4; i++ {
		got, err := pool.Acquire("")
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if got.Key() == endpoint.Key() {
			t.Fatalf("cooling proxy %s handed out", endpoint.Key())
		}
	}
}

func TestCooldownElapsedReinstates(t *testing.T) {
	pool := newTestPool(t, config.Proxy{
		URLs:            []string{"http://a:8080"},
		MaxFailures:     1,
		CooldownSeconds: 60,
	})
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return now }

	endpoint, _ := pool.Acquire("")
	pool.ReportFailure(endpoint)
	if _, err := pool.Acquire(""); !errors.Is(err, ErrNoHealthyProxy) {
		t.Fatalf("expected ErrNoHealthyProxy during cooldown, got %v", err)
	}

	now = now.Add(61 * time.Second)
	reinstated, err := pool.Acquire("")
	if err != nil {
		t.Fatalf("expected reinstatement after cooldown, got %v", err)
	}
	if reinstated.Key() != "a:8080" {
		t.Errorf("unexpected endpoint %s", reinstated.Key())
	}
	if pool.HealthyCount() != 1 {
		t.Errorf("healthy count after reinstatement: %d", pool.HealthyCount())
	}
}

func TestReportSuccessResetsStreak(t *testing.T) {
	pool := newTestPool(t, config.Proxy{
		URLs:        []string{"http://a:8080"},
		MaxFailures: 2,
	})

	endpoint, _ := pool.Acquire("")
	pool.ReportFailure(endpoint)
	pool.ReportSuccess(endpoint)
	pool.ReportFailure(endpoint)
	if pool.HealthyCount() != 1 {
		t.Errorf("success must reset the failure streak")
	}
}

func TestEmptyPool(t *testing.T) {
	pool := newTestPool(t, config.Proxy{})
	if _, err := pool.Acquire(""); !errors.Is(err, ErrEmptyPool) {
		t.Errorf("expected ErrEmptyPool, got %v", err)
	}
	if pool.Size() != 0 {
		t.Errorf("expected size 0, got %d", pool.Size())
	}
}

func TestNewPoolRejectsBadURL(t *testing.T) {
	if _, err := NewPool(config.Proxy{URLs: []string{"://nohost"}}); err == nil {
		t.Error("expected error for malformed proxy url")
	}
}
