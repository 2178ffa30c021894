package resilience

import (
	"context"
	"time"

	"github.com/nimble-gus/megatienda-core/observe"
)

// Protector composes the protection primitives around a single backend
// dependency: breaker outermost, then the query queue, then retry, with the
// per-attempt timeout innermost.
type Protector struct {
	label   string
	breaker *CircuitBreaker
	queue   *QueryQueue
	retry   *RetryExecutor
	timeout time.Duration
	metrics *observe.Metrics
}

// ProtectorOption configures a Protector.
type ProtectorOption func(*Protector)

// WithProtectorBreaker routes executions through cb.
func WithProtectorBreaker(cb *CircuitBreaker) ProtectorOption {
	return func(p *Protector) { p.breaker = cb }
}

// WithProtectorQueue bounds execution concurrency with q.
func WithProtectorQueue(q *QueryQueue) ProtectorOption {
	return func(p *Protector) { p.queue = q }
}

// WithProtectorRetry retries transient store failures with e.
func WithProtectorRetry(e *RetryExecutor) ProtectorOption {
	return func(p *Protector) { p.retry = e }
}

// WithProtectorTimeout sets the per-attempt deadline. Non-positive values
// keep the default so a zero from config cannot make every call expire
// instantly.
func WithProtectorTimeout(d time.Duration) ProtectorOption {
	return func(p *Protector) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithProtectorMetrics sets the metric instruments.
func WithProtectorMetrics(m *observe.Metrics) ProtectorOption {
	return func(p *Protector) { p.metrics = m }
}

// NewProtector creates a protector labelled for logs and metrics.
func NewProtector(label string, opts ...ProtectorOption) *Protector {
	p := &Protector{label: label, timeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs op through every configured layer:
// breaker( queue( retry( timeout(op) ) ) ).
func (p *Protector) Execute(ctx context.Context, op func(context.Context) error) error {
	start := time.Now()

	execute := func(ctx context.Context) error {
		_, err := WithTimeout(ctx, p.timeout, p.label, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, op(ctx)
		})
		return err
	}

	if p.retry != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return p.retry.Do(ctx, inner)
		}
	}

	if p.queue != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return p.queue.Do(ctx, inner)
		}
	}

	if p.breaker != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return p.breaker.Execute(ctx, inner)
		}
	}

	err := execute(ctx)
	p.metrics.RecordOperationDuration(ctx, p.label, time.Since(start), err)
	return err
}

// Protect runs a value-returning operation through the protector.
func Protect[T any](ctx context.Context, p *Protector, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := p.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
