package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded by the traffic-control components.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without observability wiring in tests.
type Metrics struct {
	meter metric.Meter

	limiterDecisions metric.Int64Counter
	circuitChanges   metric.Int64Counter
	circuitRejects   metric.Int64Counter
	queueWait        metric.Float64Histogram
	cacheRequests    metric.Int64Counter
	opDuration       metric.Float64Histogram
}

// NewMetrics creates the instrument set on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	limiterDecisions, err := meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Rate limiter admission decisions"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	circuitChanges, err := meter.Int64Counter(
		"circuit.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	circuitRejects, err := meter.Int64Counter(
		"circuit.rejections",
		metric.WithDescription("Executions rejected by an open circuit"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	queueWait, err := meter.Float64Histogram(
		"queue.wait_ms",
		metric.WithDescription("Time tasks spend queued before dispatch"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheRequests, err := meter.Int64Counter(
		"cache.requests",
		metric.WithDescription("Cache lookups by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	opDuration, err := meter.Float64Histogram(
		"op.duration_ms",
		metric.WithDescription("Protected operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		meter:            meter,
		limiterDecisions: limiterDecisions,
		circuitChanges:   circuitChanges,
		circuitRejects:   circuitRejects,
		queueWait:        queueWait,
		cacheRequests:    cacheRequests,
		opDuration:       opDuration,
	}, nil
}

// RecordLimiterDecision records an admission decision.
// Outcome is one of "allowed", "denied", "failopen".
func (m *Metrics) RecordLimiterDecision(ctx context.Context, category, window, outcome string) {
	if m == nil {
		return
	}
	m.limiterDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("window", window),
		attribute.String("outcome", outcome),
	))
}

// RecordCircuitTransition records a breaker state change.
func (m *Metrics) RecordCircuitTransition(ctx context.Context, name, from, to string) {
	if m == nil {
		return
	}
	m.circuitChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordCircuitRejection records an execution refused by an open breaker.
func (m *Metrics) RecordCircuitRejection(ctx context.Context, name string) {
	if m == nil {
		return
	}
	m.circuitRejects.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
	))
}

// RegisterQueueDepth registers an observable gauge sampling the number of
// tasks currently queued or running.
func (m *Metrics) RegisterQueueDepth(depth func() int64) error {
	if m == nil {
		return nil
	}
	_, err := m.meter.Int64ObservableGauge(
		"queue.depth",
		metric.WithDescription("Tasks queued or running"),
		metric.WithUnit("{task}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(depth())
			return nil
		}),
	)
	return err
}

// RecordQueueWait records how long a task waited for a concurrency slot.
func (m *Metrics) RecordQueueWait(ctx context.Context, wait time.Duration) {
	if m == nil {
		return
	}
	m.queueWait.Record(ctx, float64(wait.Milliseconds()))
}

// RecordCacheRequest records a cache lookup. Outcome is "hit" or "miss".
func (m *Metrics) RecordCacheRequest(ctx context.Context, namespace, outcome string) {
	if m == nil {
		return
	}
	m.cacheRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.String("outcome", outcome),
	))
}

// RecordOperationDuration records the duration of a protected operation.
func (m *Metrics) RecordOperationDuration(ctx context.Context, label string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.opDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("label", label),
		attribute.Bool("error", err != nil),
	))
}
