package health

import (
	"context"
	"fmt"
	"time"

	"github.com/nimble-gus/megatienda-core/kvstore"
)

// StoreChecker verifies the shared keyed store is reachable. Rate-limit
// counters and breaker persistence both fail open without it, so a down
// store degrades protection rather than availability; the check surfaces
// that condition to operators.
type StoreChecker struct {
	store kvstore.Store

	// SlowThreshold marks the store degraded when a ping takes longer.
	// Default 250ms.
	SlowThreshold time.Duration
}

// NewStoreChecker creates a checker over the shared store.
func NewStoreChecker(store kvstore.Store) *StoreChecker {
	return &StoreChecker{store: store, SlowThreshold: 250 * time.Millisecond}
}

func (c *StoreChecker) Name() string { return "kvstore" }

func (c *StoreChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if err := c.store.Ping(ctx); err != nil {
		return Unhealthy("store unreachable", err)
	}

	rtt := time.Since(start)
	details := map[string]any{"rtt_ms": rtt.Milliseconds()}
	if rtt > c.SlowThreshold {
		return Degraded(fmt.Sprintf("store ping slow: %v", rtt)).WithDetails(details)
	}
	return Healthy("store reachable").WithDetails(details)
}
