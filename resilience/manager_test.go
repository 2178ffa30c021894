package resilience

import (
	"context"
	"testing"
	"time"
)

func testManager() *Manager {
	return NewManager(ManagerConfig{
		Defaults: testBreakerConfig(),
	})
}

func tripBreaker(t *testing.T, m *Manager, name string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = m.Execute(ctx, name, failingOp)
	}
	if m.Breaker(name).State() != StateOpen {
		t.Fatalf("breaker %q did not open", name)
	}
}

func TestManager_LazyCreationReturnsSameBreaker(t *testing.T) {
	m := testManager()

	a := m.Breaker("products-db")
	b := m.Breaker("products-db")
	if a != b {
		t.Error("Breaker() returned different instances for the same name")
	}
}

func TestManager_Health(t *testing.T) {
	m := testManager()
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_ = m.Execute(ctx, name, okOp)
	}

	status, open := m.Health()
	if status != HealthHealthy || len(open) != 0 {
		t.Errorf("Health() = %v %v, want healthy none", status, open)
	}

	tripBreaker(t, m, "a")
	status, open = m.Health()
	if status != HealthDegraded {
		t.Errorf("Health() with 1/3 open = %v, want degraded", status)
	}
	if len(open) != 1 || open[0] != "a" {
		t.Errorf("open breakers = %v, want [a]", open)
	}

	tripBreaker(t, m, "b")
	status, _ = m.Health()
	if status != HealthUnhealthy {
		t.Errorf("Health() with 2/3 open = %v, want unhealthy", status)
	}
}

func TestManager_Reset(t *testing.T) {
	m := testManager()

	tripBreaker(t, m, "a")
	m.Reset(context.Background(), "a")

	if m.Breaker("a").State() != StateClosed {
		t.Errorf("state after admin reset = %v, want closed", m.Breaker("a").State())
	}
}

func TestManager_SweepResetsStaleCounters(t *testing.T) {
	m := NewManager(ManagerConfig{
		Defaults:         testBreakerConfig(),
		MonitoringPeriod: 20 * time.Millisecond,
	})
	ctx := context.Background()

	// Two failures: counters accumulate but the breaker stays closed.
	_ = m.Execute(ctx, "a", failingOp)
	_ = m.Execute(ctx, "a", failingOp)

	time.Sleep(30 * time.Millisecond)
	m.sweep(ctx)

	snap := m.Breaker("a").Snapshot()
	if snap.Failures != 0 || snap.TotalRequests != 0 {
		t.Errorf("counters after sweep = %d/%d, want 0/0", snap.Failures, snap.TotalRequests)
	}
}

func TestManager_SweepKeepsRecentFailures(t *testing.T) {
	m := NewManager(ManagerConfig{
		Defaults:         testBreakerConfig(),
		MonitoringPeriod: time.Hour,
	})
	ctx := context.Background()

	_ = m.Execute(ctx, "a", failingOp)
	m.sweep(ctx)

	if snap := m.Breaker("a").Snapshot(); snap.Failures != 1 {
		t.Errorf("failures after sweep = %d, want 1 (failure is recent)", snap.Failures)
	}
}

func TestManager_Snapshots(t *testing.T) {
	m := testManager()
	ctx := context.Background()

	_ = m.Execute(ctx, "a", okOp)
	_ = m.Execute(ctx, "b", okOp)

	snaps := m.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("Snapshots() returned %d entries, want 2", len(snaps))
	}
}
