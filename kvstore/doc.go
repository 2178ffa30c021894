// Package kvstore abstracts the shared keyed store used by the traffic-control
// layer: rate-limit counters, circuit-breaker snapshots, and cache entries all
// live behind the same small Store interface.
//
// Two implementations are provided. RedisStore is the production backend and
// is shared across all storefront instances. MemoryStore is process-local and
// backs tests and single-instance development setups.
package kvstore
