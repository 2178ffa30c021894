package resilience

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nimble-gus/megatienda-core/kvstore"
	"github.com/nimble-gus/megatienda-core/observe"
)

// HealthStatus classifies the aggregate condition of all breakers.
type HealthStatus string

const (
	// HealthHealthy means no breaker is open.
	HealthHealthy HealthStatus = "healthy"
	// HealthDegraded means fewer than half the breakers are open.
	HealthDegraded HealthStatus = "degraded"
	// HealthUnhealthy means half or more of the breakers are open.
	HealthUnhealthy HealthStatus = "unhealthy"
)

// ManagerConfig configures the breaker registry.
type ManagerConfig struct {
	// Defaults is the configuration applied to breakers created lazily
	// by name.
	Defaults BreakerConfig

	// MonitoringPeriod is how long a breaker may go without a failure before
	// the sweep considers its accumulated counters stale and resets them.
	// Default: 10 minutes
	MonitoringPeriod time.Duration

	// SweepEvery is the interval of the stale-counter sweep.
	// Default: 1 minute
	SweepEvery time.Duration
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	c.Defaults = c.Defaults.withDefaults()
	if c.MonitoringPeriod <= 0 {
		c.MonitoringPeriod = 10 * time.Minute
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = time.Minute
	}
	return c
}

// Manager is a registry of circuit breakers keyed by dependency name.
type Manager struct {
	config  ManagerConfig
	store   kvstore.Store
	log     *zap.Logger
	metrics *observe.Metrics

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerStore enables snapshot persistence for all managed breakers.
func WithManagerStore(store kvstore.Store) ManagerOption {
	return func(m *Manager) { m.store = store }
}

// WithManagerLogger sets the logger.
func WithManagerLogger(log *zap.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithManagerMetrics sets the metric instruments.
func WithManagerMetrics(mx *observe.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mx }
}

// NewManager creates a breaker registry.
func NewManager(config ManagerConfig, opts ...ManagerOption) *Manager {
	m := &Manager{
		config:   config.withDefaults(),
		log:      zap.NewNop(),
		breakers: make(map[string]*CircuitBreaker),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Breaker returns the breaker for name, creating it with the shared defaults
// (and restoring any persisted snapshot) on first use.
func (m *Manager) Breaker(name string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[name]; ok {
		return cb
	}

	opts := []BreakerOption{
		WithBreakerLogger(m.log),
		WithBreakerMetrics(m.metrics),
	}
	if m.store != nil {
		opts = append(opts, WithBreakerStore(m.store))
	}
	cb := NewCircuitBreaker(name, m.config.Defaults, opts...)
	m.breakers[name] = cb
	return cb
}

// Execute runs op through the named breaker.
func (m *Manager) Execute(ctx context.Context, name string, op func(context.Context) error) error {
	return m.Breaker(name).Execute(ctx, op)
}

// Reset forces the named breaker to CLOSED. Administrative override only.
func (m *Manager) Reset(ctx context.Context, name string) {
	m.Breaker(name).Reset(ctx)
}

// Snapshots returns the state of every registered breaker.
func (m *Manager) Snapshots() []BreakerSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := make([]BreakerSnapshot, 0, len(m.breakers))
	for _, cb := range m.breakers {
		snaps = append(snaps, cb.Snapshot())
	}
	return snaps
}

// Health classifies the registry: healthy when no breaker is open, degraded
// when fewer than half are open, unhealthy otherwise.
func (m *Manager) Health() (HealthStatus, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var open []string
	for name, cb := range m.breakers {
		if cb.State() == StateOpen {
			open = append(open, name)
		}
	}

	switch {
	case len(open) == 0:
		return HealthHealthy, nil
	case len(open)*2 < len(m.breakers):
		return HealthDegraded, open
	default:
		return HealthUnhealthy, open
	}
}

// StartSweeper launches the periodic stale-counter sweep. Breakers that have
// not recorded a failure within the monitoring period get their working
// counters reset, so an incident long past cannot trip the cumulative ratio.
// Stop by cancelling the context.
func (m *Manager) StartSweeper(ctx context.Context) {
	t := time.NewTicker(m.config.SweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.sweep(ctx)
			}
		}
	}()
}

func (m *Manager) sweep(ctx context.Context) {
	m.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(m.breakers))
	for _, cb := range m.breakers {
		breakers = append(breakers, cb)
	}
	m.mu.Unlock()

	cutoff := time.Now().Add(-m.config.MonitoringPeriod)
	for _, cb := range breakers {
		lastFailure, total := cb.idleSince()
		if total == 0 || lastFailure.After(cutoff) {
			continue
		}
		m.log.Info("resetting stale circuit counters",
			zap.String("breaker", cb.Name()),
			zap.Time("last_failure", lastFailure))
		cb.Reset(ctx)
	}
}
