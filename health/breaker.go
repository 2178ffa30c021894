package health

import (
	"context"
	"fmt"

	"github.com/nimble-gus/megatienda-core/resilience"
)

// BreakerChecker reports the condition of the circuit breaker registry:
// healthy when no breaker is open, degraded when a minority are open,
// unhealthy when half or more are open.
type BreakerChecker struct {
	manager *resilience.Manager
}

// NewBreakerChecker creates a checker over the breaker registry.
func NewBreakerChecker(manager *resilience.Manager) *BreakerChecker {
	return &BreakerChecker{manager: manager}
}

func (c *BreakerChecker) Name() string { return "circuit_breakers" }

func (c *BreakerChecker) Check(_ context.Context) Result {
	status, open := c.manager.Health()

	details := map[string]any{
		"registered": len(c.manager.Snapshots()),
		"open":       open,
	}

	switch status {
	case resilience.HealthHealthy:
		return Healthy("all breakers closed").WithDetails(details)
	case resilience.HealthDegraded:
		return Degraded(fmt.Sprintf("%d breaker(s) open", len(open))).WithDetails(details)
	default:
		return Unhealthy(fmt.Sprintf("%d breaker(s) open", len(open)), nil).WithDetails(details)
	}
}
