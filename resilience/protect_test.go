package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProtector_FullChain(t *testing.T) {
	cb := NewCircuitBreaker("db", testBreakerConfig())
	q := testQueue(2)
	defer q.Close()
	conn := &fakeConn{}
	retry := NewRetryExecutor(conn, testRetryConfig())

	p := NewProtector("products-read",
		WithProtectorBreaker(cb),
		WithProtectorQueue(q),
		WithProtectorRetry(retry),
		WithProtectorTimeout(time.Second),
	)

	got, err := Protect(context.Background(), p, func(ctx context.Context) (string, error) {
		return "products", nil
	})
	if err != nil {
		t.Fatalf("Protect() error = %v", err)
	}
	if got != "products" {
		t.Errorf("Protect() = %q, want products", got)
	}
	if stats := q.Stats(); stats.Completed != 1 {
		t.Errorf("queue completed = %d, want 1 (operation did not pass through the queue)", stats.Completed)
	}
}

func TestProtector_BreakerShortCircuits(t *testing.T) {
	cb := NewCircuitBreaker("db", testBreakerConfig())
	q := testQueue(2)
	defer q.Close()

	p := NewProtector("orders-read",
		WithProtectorBreaker(cb),
		WithProtectorQueue(q),
		WithProtectorTimeout(time.Second),
	)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = p.Execute(ctx, failingOp)
	}

	dispatchedBefore := q.Stats().Dispatched
	err := p.Execute(ctx, okOp)

	var cbErr *CircuitBreakerError
	if !errors.As(err, &cbErr) {
		t.Fatalf("Execute() error = %v, want CircuitBreakerError", err)
	}
	if q.Stats().Dispatched != dispatchedBefore {
		t.Error("open breaker still dispatched work to the queue")
	}
}

func TestProtector_ZeroTimeoutKeepsDefault(t *testing.T) {
	p := NewProtector("configured-read", WithProtectorTimeout(0))

	// With a literal zero deadline every call would expire before the
	// operation ran; the option must fall back to the default instead.
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
			return nil
		}
	})
	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
}

func TestProtector_TimeoutInnermost(t *testing.T) {
	p := NewProtector("slow-read", WithProtectorTimeout(30*time.Millisecond))

	err := p.Execute(context.Background(), func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	var toErr *TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("Execute() error = %v, want TimeoutError", err)
	}
	if toErr.Label != "slow-read" {
		t.Errorf("Label = %q, want slow-read", toErr.Label)
	}
}
