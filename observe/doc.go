// Package observe provides the ambient observability for the traffic-control
// layer: zap logger construction and the OpenTelemetry metric instruments
// shared by the rate limiter, circuit breaker, query queue, and cache manager.
//
// It is pure instrumentation: no execution, no transport. Exporter selection
// (Prometheus, OTLP) belongs to the consuming service; this package only needs
// a metric.Meter.
package observe
