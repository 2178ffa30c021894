// Package health aggregates readiness checks for the traffic-control layer:
// shared keyed store reachability and the condition of the circuit breaker
// registry. Results are served over HTTP for load balancers and orchestration
// probes.
package health
