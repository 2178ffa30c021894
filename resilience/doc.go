// Package resilience implements the protection layer between the storefront's
// request handlers and the shared backend store.
//
// # Components
//
//   - Circuit Breaker: per-dependency failure-ratio tripwire whose state is
//     persisted to the shared keyed store, so a restarted instance resumes
//     where it left off. A Manager keys breakers by name and reports
//     aggregate health.
//
//   - Query Queue: process-local bounded-concurrency scheduler that caps how
//     many protected operations run against the backend store at once, with
//     paced FIFO dispatch to smooth bursts.
//
//   - Timeout wrappers: race an operation against a deadline, with
//     pre-configured deadlines and fallbacks per operation category
//     (query, transaction, cache, external call).
//
//   - Retry Executor: probes store connectivity, reconnects when needed, and
//     retries operations that fail with a transient store error.
//
// The typical protected read composes them as
//
//	breaker.Execute( queue.Do( retry( timeout(op) ) ) )
//
// which Protector wires up in one call.
//
// The query queue's concurrency bound is process-local by design: with N
// storefront instances the true bound against the shared store is
// MaxConcurrent x N. It is a per-instance throttle, not a distributed
// semaphore.
package resilience
