package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimble-gus/megatienda-core/kvstore"
)

var errBoom = errors.New("boom")

func failingOp(ctx context.Context) error { return errBoom }
func okOp(ctx context.Context) error      { return nil }

func testBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureRatio: 0.5,
		OpenTimeout:  50 * time.Millisecond,
		MinRequests:  3,
	}
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb := NewCircuitBreaker("db", BreakerConfig{})

	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("db", BreakerConfig{})

	if cb.config.FailureRatio != 0.05 {
		t.Errorf("FailureRatio = %v, want 0.05", cb.config.FailureRatio)
	}
	if cb.config.OpenTimeout != 60*time.Second {
		t.Errorf("OpenTimeout = %v, want 60s", cb.config.OpenTimeout)
	}
	if cb.config.MinRequests != 3 {
		t.Errorf("MinRequests = %d, want 3", cb.config.MinRequests)
	}
	if cb.config.SnapshotTTL != time.Hour {
		t.Errorf("SnapshotTTL = %v, want 1h", cb.config.SnapshotTTL)
	}
}

func TestCircuitBreaker_OpensOnFailureRatio(t *testing.T) {
	cb := NewCircuitBreaker("db", testBreakerConfig())
	ctx := context.Background()

	// Two failures: below MinRequests, stays closed.
	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, failingOp); !errors.Is(err, errBoom) {
			t.Fatalf("Execute() error = %v, want errBoom", err)
		}
		if cb.State() != StateClosed {
			t.Errorf("after %d failures state = %v, want closed", i+1, cb.State())
		}
	}

	// Third failure reaches MinRequests with ratio 1.0 >= 0.5.
	if err := cb.Execute(ctx, failingOp); !errors.Is(err, errBoom) {
		t.Fatalf("Execute() error = %v, want errBoom", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("after 3 failures state = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	cb := NewCircuitBreaker("db", testBreakerConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, failingOp)
	}

	invoked := false
	err := cb.Execute(ctx, func(ctx context.Context) error {
		invoked = true
		return nil
	})

	var cbErr *CircuitBreakerError
	if !errors.As(err, &cbErr) {
		t.Fatalf("Execute() while open error = %v, want CircuitBreakerError", err)
	}
	if invoked {
		t.Error("operation was invoked while circuit open")
	}
	if cbErr.Name != "db" {
		t.Errorf("error name = %q, want db", cbErr.Name)
	}
	if cbErr.TimeUntilReset <= 0 || cbErr.TimeUntilReset > 50*time.Millisecond {
		t.Errorf("TimeUntilReset = %v, want (0, 50ms]", cbErr.TimeUntilReset)
	}
	if cbErr.HTTPStatus() != 503 {
		t.Errorf("HTTPStatus() = %d, want 503", cbErr.HTTPStatus())
	}
}

func TestCircuitBreaker_HalfOpenThenCloses(t *testing.T) {
	cb := NewCircuitBreaker("db", testBreakerConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, failingOp)
	}
	time.Sleep(60 * time.Millisecond)

	var trialState State
	err := cb.Execute(ctx, func(ctx context.Context) error {
		trialState = cb.State()
		return nil
	})
	if err != nil {
		t.Fatalf("trial Execute() error = %v", err)
	}
	if trialState != StateHalfOpen {
		t.Errorf("state during trial = %v, want half-open", trialState)
	}
	if cb.State() != StateClosed {
		t.Errorf("state after successful trial = %v, want closed", cb.State())
	}

	snap := cb.Snapshot()
	if snap.Failures != 0 {
		t.Errorf("failures after close = %d, want 0", snap.Failures)
	}
	if snap.TotalRequests != 4 {
		t.Errorf("totalRequests = %d, want 4 (counters accumulate across the trial)", snap.TotalRequests)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopensCumulatively(t *testing.T) {
	cb := NewCircuitBreaker("db", testBreakerConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, failingOp)
	}
	time.Sleep(60 * time.Millisecond)

	// Trial fails: 4 failures / 4 requests since the last close, so the
	// cumulative ratio reopens the circuit immediately.
	if err := cb.Execute(ctx, failingOp); !errors.Is(err, errBoom) {
		t.Fatalf("trial Execute() error = %v, want errBoom", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("state after failed trial = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_PersistAndRestore(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	cb := NewCircuitBreaker("orders-db", testBreakerConfig(), WithBreakerStore(store))
	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, failingOp)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	// A new breaker for the same name resumes the persisted state, as after
	// a process restart.
	restored := NewCircuitBreaker("orders-db", testBreakerConfig(), WithBreakerStore(store))
	if restored.State() != StateOpen {
		t.Errorf("restored state = %v, want open", restored.State())
	}
	snap := restored.Snapshot()
	if snap.Failures != 3 || snap.TotalRequests != 3 {
		t.Errorf("restored counters = %d/%d, want 3/3", snap.Failures, snap.TotalRequests)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("db", testBreakerConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, failingOp)
	}
	cb.Reset(ctx)

	if cb.State() != StateClosed {
		t.Errorf("state after reset = %v, want closed", cb.State())
	}
	snap := cb.Snapshot()
	if snap.Failures != 0 || snap.TotalRequests != 0 {
		t.Errorf("counters after reset = %d/%d, want 0/0", snap.Failures, snap.TotalRequests)
	}
	if snap.Metrics.TotalFailures != 3 {
		t.Errorf("all-time failures = %d, want 3 (kept across reset)", snap.Metrics.TotalFailures)
	}
}

func TestCircuitBreaker_SuccessesDoNotOpen(t *testing.T) {
	cb := NewCircuitBreaker("db", testBreakerConfig())
	ctx := context.Background()

	// 1 failure in 10 requests: ratio 0.1 < 0.5, stays closed.
	_ = cb.Execute(ctx, failingOp)
	for i := 0; i < 9; i++ {
		if err := cb.Execute(ctx, okOp); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}

	snap := cb.Snapshot()
	if snap.Metrics.AvgResponseMs < 0 {
		t.Errorf("AvgResponseMs = %v, want >= 0", snap.Metrics.AvgResponseMs)
	}
}
