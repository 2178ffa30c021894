package resilience

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nimble-gus/megatienda-core/kvstore"
	"github.com/nimble-gus/megatienda-core/observe"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is failing fast.
	StateOpen
	// StateHalfOpen means the circuit is testing if the dependency recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureRatio is the failure fraction (failures/totalRequests since the
	// last time the breaker closed) at which the circuit opens.
	// Default: 0.05 (5%)
	FailureRatio float64

	// OpenTimeout is how long the circuit stays open before allowing a
	// trial request.
	// Default: 60 seconds
	OpenTimeout time.Duration

	// MinRequests is the minimum number of requests since the last close
	// before the failure ratio is evaluated.
	// Default: 3
	MinRequests int64

	// SnapshotTTL is the lifetime of the persisted state snapshot.
	// Default: 1 hour
	SnapshotTTL time.Duration

	// IsFailure determines if an error counts as a failure.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureRatio <= 0 {
		c.FailureRatio = 0.05
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 60 * time.Second
	}
	if c.MinRequests <= 0 {
		c.MinRequests = 3
	}
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = time.Hour
	}
	if c.IsFailure == nil {
		c.IsFailure = func(err error) bool { return err != nil }
	}
	return c
}

// BreakerMetrics are the all-time counters for a breaker, independent of the
// working counters that reset when the circuit closes.
type BreakerMetrics struct {
	TotalRequests   int64     `json:"totalRequests"`
	TotalFailures   int64     `json:"totalFailures"`
	TotalSuccesses  int64     `json:"totalSuccesses"`
	LastStateChange time.Time `json:"lastStateChange"`
	AvgResponseMs   float64   `json:"averageResponseTimeMs"`
}

// CircuitBreaker guards a single named dependency.
//
// Failure counting is cumulative since the last CLOSED reset: a failure during
// the HALF_OPEN trial re-evaluates the same accumulated ratio and can reopen
// the circuit without the trial getting a fresh count. Counters are only
// zeroed when the breaker closes after a successful trial, by an explicit
// Reset, or by the manager's idle sweep.
type CircuitBreaker struct {
	name    string
	config  BreakerConfig
	store   kvstore.Store // nil disables persistence
	log     *zap.Logger
	metrics *observe.Metrics

	mu            sync.Mutex
	state         State
	failures      int64
	successes     int64
	totalRequests int64
	lastFailure   time.Time
	lastSuccess   time.Time
	allTime       BreakerMetrics
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerStore enables state persistence to the shared keyed store.
func WithBreakerStore(store kvstore.Store) BreakerOption {
	return func(cb *CircuitBreaker) { cb.store = store }
}

// WithBreakerLogger sets the logger.
func WithBreakerLogger(log *zap.Logger) BreakerOption {
	return func(cb *CircuitBreaker) { cb.log = log }
}

// WithBreakerMetrics sets the metric instruments.
func WithBreakerMetrics(m *observe.Metrics) BreakerOption {
	return func(cb *CircuitBreaker) { cb.metrics = m }
}

// NewCircuitBreaker creates a breaker for the named dependency. When a store
// is configured, a persisted snapshot for the same name is restored so the
// breaker resumes its pre-restart state.
func NewCircuitBreaker(name string, config BreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:   name,
		config: config.withDefaults(),
		log:    zap.NewNop(),
		state:  StateClosed,
	}
	cb.allTime.LastStateChange = time.Now()
	for _, opt := range opts {
		opt(cb)
	}
	cb.restore()
	return cb
}

// Name returns the dependency name this breaker guards.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs the operation through the circuit breaker. When the circuit is
// open and the open timeout has not elapsed, the operation is never invoked
// and a *CircuitBreakerError with the remaining wait is returned.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.beforeRequest(ctx); err != nil {
		return err
	}

	start := time.Now()
	err := op(ctx)
	cb.afterRequest(ctx, time.Since(start), err)
	return err
}

func (cb *CircuitBreaker) beforeRequest(ctx context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}

	elapsed := time.Since(cb.lastFailure)
	if elapsed < cb.config.OpenTimeout {
		cb.metrics.RecordCircuitRejection(ctx, cb.name)
		return &CircuitBreakerError{
			Name:           cb.name,
			TimeUntilReset: cb.config.OpenTimeout - elapsed,
		}
	}

	// Open timeout elapsed, let a trial request through.
	cb.setStateLocked(ctx, StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) afterRequest(ctx context.Context, elapsed time.Duration, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++
	cb.allTime.TotalRequests++
	ms := float64(elapsed.Microseconds()) / 1000
	cb.allTime.AvgResponseMs += (ms - cb.allTime.AvgResponseMs) / float64(cb.allTime.TotalRequests)

	if cb.config.IsFailure(err) {
		cb.failures++
		cb.allTime.TotalFailures++
		cb.lastFailure = time.Now()

		// Same cumulative rule in every state: a half-open trial failure is
		// judged on the ratio accumulated since the last close.
		if cb.totalRequests >= cb.config.MinRequests &&
			float64(cb.failures)/float64(cb.totalRequests) >= cb.config.FailureRatio {
			if cb.state != StateOpen {
				cb.setStateLocked(ctx, StateOpen)
			}
		}
		return
	}

	cb.successes++
	cb.allTime.TotalSuccesses++
	cb.lastSuccess = time.Now()

	if cb.state == StateHalfOpen {
		cb.failures = 0
		cb.setStateLocked(ctx, StateClosed)
	}
}

// setStateLocked transitions the breaker, records the change, and persists a
// snapshot. Caller holds mu.
func (cb *CircuitBreaker) setStateLocked(ctx context.Context, to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.allTime.LastStateChange = time.Now()

	cb.log.Info("circuit state changed",
		zap.String("breaker", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int64("failures", cb.failures),
		zap.Int64("requests", cb.totalRequests))
	cb.metrics.RecordCircuitTransition(ctx, cb.name, from.String(), to.String())

	cb.persistLocked()
}

// State returns the current circuit state without advancing it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns the working counters and all-time metrics.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.snapshotLocked()
}

// Reset is the administrative override: it forces the breaker to CLOSED and
// zeroes the working counters. All-time metrics are kept.
func (cb *CircuitBreaker) Reset(ctx context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.successes = 0
	cb.totalRequests = 0
	cb.setStateLocked(ctx, StateClosed)
	cb.persistLocked()
}

// idleSince reports the last failure time, for the manager's stale sweep.
func (cb *CircuitBreaker) idleSince() (time.Time, int64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastFailure, cb.totalRequests
}

// BreakerSnapshot is the serialized form of a breaker's state. It is both the
// persistence format and the admin/health reporting shape.
type BreakerSnapshot struct {
	Name          string         `json:"name"`
	State         string         `json:"state"`
	Failures      int64          `json:"failures"`
	Successes     int64          `json:"successes"`
	TotalRequests int64          `json:"totalRequests"`
	LastFailure   time.Time      `json:"lastFailureTime"`
	LastSuccess   time.Time      `json:"lastSuccessTime"`
	Metrics       BreakerMetrics `json:"metrics"`
}

func (cb *CircuitBreaker) snapshotLocked() BreakerSnapshot {
	return BreakerSnapshot{
		Name:          cb.name,
		State:         cb.state.String(),
		Failures:      cb.failures,
		Successes:     cb.successes,
		TotalRequests: cb.totalRequests,
		LastFailure:   cb.lastFailure,
		LastSuccess:   cb.lastSuccess,
		Metrics:       cb.allTime,
	}
}

func snapshotKey(name string) string { return "circuit:" + name }

// persistLocked writes the snapshot to the shared store. Best effort: a store
// outage must never fail the protected call. Caller holds mu.
func (cb *CircuitBreaker) persistLocked() {
	if cb.store == nil {
		return
	}

	data, err := json.Marshal(cb.snapshotLocked())
	if err != nil {
		cb.log.Warn("circuit snapshot marshal failed", zap.String("breaker", cb.name), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cb.store.Set(ctx, snapshotKey(cb.name), string(data), cb.config.SnapshotTTL); err != nil {
		cb.log.Warn("circuit snapshot persist failed", zap.String("breaker", cb.name), zap.Error(err))
	}
}

// restore loads a persisted snapshot, if any.
func (cb *CircuitBreaker) restore() {
	if cb.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := cb.store.Get(ctx, snapshotKey(cb.name))
	if err != nil {
		if err != kvstore.ErrNotFound {
			cb.log.Warn("circuit snapshot load failed", zap.String("breaker", cb.name), zap.Error(err))
		}
		return
	}

	var snap BreakerSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		cb.log.Warn("circuit snapshot decode failed", zap.String("breaker", cb.name), zap.Error(err))
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch snap.State {
	case StateOpen.String():
		cb.state = StateOpen
	case StateHalfOpen.String():
		cb.state = StateHalfOpen
	default:
		cb.state = StateClosed
	}
	cb.failures = snap.Failures
	cb.successes = snap.Successes
	cb.totalRequests = snap.TotalRequests
	cb.lastFailure = snap.LastFailure
	cb.lastSuccess = snap.LastSuccess
	cb.allTime = snap.Metrics

	cb.log.Debug("circuit state restored",
		zap.String("breaker", cb.name),
		zap.String("state", snap.State))
}
