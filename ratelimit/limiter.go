package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nimble-gus/megatienda-core/kvstore"
	"github.com/nimble-gus/megatienda-core/observe"
)

// Result is the outcome of an admission check. Limit/Remaining/ResetAfter
// always describe the window named in Window; on success that is the minute
// window, on rejection the window that tripped.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter int // seconds until the reported window resets
	Window     Window
}

// Limiter performs multi-window admission control against the shared counter
// store.
type Limiter struct {
	store      kvstore.Store
	categories map[string]Limits
	fallback   string
	log        *zap.Logger
	metrics    *observe.Metrics
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithFallbackCategory sets the category used when a check names an unknown
// category. Default: public.
func WithFallbackCategory(category string) Option {
	return func(l *Limiter) { l.fallback = category }
}

// New creates a limiter with the given per-category thresholds.
func New(store kvstore.Store, categories map[string]Limits, opts ...Option) *Limiter {
	l := &Limiter{
		store:      store,
		categories: categories,
		fallback:   CategoryPublic,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) limits(category string) Limits {
	if lim, ok := l.categories[category]; ok {
		return lim
	}
	return l.categories[l.fallback]
}

func counterKey(category, identifier string, w Window) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s", category, identifier, w)
}

// CheckLimit admits or rejects one request for (identifier, category).
// Counters are incremented as part of the check; windows are evaluated
// minute, hour, burst, and later windows are not incremented once an earlier
// one has tripped.
func (l *Limiter) CheckLimit(ctx context.Context, identifier, category string) Result {
	limits := l.limits(category)

	minuteCount, minuteReset, err := l.bump(ctx, identifier, category, WindowMinute, limits)
	if err != nil {
		return l.failOpen(ctx, category, limits, err)
	}
	if minuteCount > int64(limits.PerMinute) {
		return l.reject(ctx, category, limits, WindowMinute, minuteReset)
	}

	hourCount, hourReset, err := l.bump(ctx, identifier, category, WindowHour, limits)
	if err != nil {
		return l.failOpen(ctx, category, limits, err)
	}
	if hourCount > int64(limits.PerHour) {
		return l.reject(ctx, category, limits, WindowHour, hourReset)
	}

	burstCount, burstReset, err := l.bump(ctx, identifier, category, WindowBurst, limits)
	if err != nil {
		return l.failOpen(ctx, category, limits, err)
	}
	if burstCount > int64(limits.Burst) {
		return l.reject(ctx, category, limits, WindowBurst, burstReset)
	}

	l.metrics.RecordLimiterDecision(ctx, category, string(WindowMinute), "allowed")
	return Result{
		Allowed:    true,
		Limit:      limits.PerMinute,
		Remaining:  limits.PerMinute - int(minuteCount),
		ResetAfter: minuteReset,
		Window:     WindowMinute,
	}
}

// bump increments the counter for one window and reports the new count and
// seconds until the window resets.
func (l *Limiter) bump(ctx context.Context, identifier, category string, w Window, limits Limits) (int64, int, error) {
	key := counterKey(category, identifier, w)
	count, err := l.store.Incr(ctx, key, w.Duration())
	if err != nil {
		return 0, 0, err
	}

	reset := int(w.Duration().Seconds())
	if ttl, err := l.store.TTL(ctx, key); err == nil {
		reset = int(ttl.Seconds())
	}
	return count, reset, nil
}

func (l *Limiter) reject(ctx context.Context, category string, limits Limits, w Window, reset int) Result {
	l.metrics.RecordLimiterDecision(ctx, category, string(w), "denied")
	return Result{
		Allowed:    false,
		Limit:      limits.forWindow(w),
		Remaining:  0,
		ResetAfter: reset,
		Window:     w,
	}
}

// failOpen allows the request when the counter store is unavailable.
// Deliberate availability-over-strictness policy.
func (l *Limiter) failOpen(ctx context.Context, category string, limits Limits, err error) Result {
	l.log.Warn("rate limit store unavailable, failing open",
		zap.String("category", category),
		zap.Error(err))
	l.metrics.RecordLimiterDecision(ctx, category, string(WindowMinute), "failopen")
	return Result{
		Allowed:    true,
		Limit:      limits.PerMinute,
		Remaining:  limits.PerMinute,
		ResetAfter: int(WindowMinute.Duration().Seconds()),
		Window:     WindowMinute,
	}
}

// WindowInfo is the read-only usage report for one window.
type WindowInfo struct {
	Used       int64
	Limit      int
	Remaining  int
	ResetAfter int
}

// Info is the read-only usage report returned by LimitInfo.
type Info struct {
	Minute WindowInfo
	Hour   WindowInfo
}

// LimitInfo reports current usage for the minute and hour windows without
// incrementing any counter.
func (l *Limiter) LimitInfo(ctx context.Context, identifier, category string) (Info, error) {
	limits := l.limits(category)

	minute, err := l.windowInfo(ctx, identifier, category, WindowMinute, limits)
	if err != nil {
		return Info{}, err
	}
	hour, err := l.windowInfo(ctx, identifier, category, WindowHour, limits)
	if err != nil {
		return Info{}, err
	}
	return Info{Minute: minute, Hour: hour}, nil
}

func (l *Limiter) windowInfo(ctx context.Context, identifier, category string, w Window, limits Limits) (WindowInfo, error) {
	limit := limits.forWindow(w)

	used, reset, err := l.peek(ctx, identifier, category, w)
	if err != nil {
		return WindowInfo{}, err
	}

	remaining := limit - int(used)
	if remaining < 0 {
		remaining = 0
	}
	return WindowInfo{Used: used, Limit: limit, Remaining: remaining, ResetAfter: reset}, nil
}

// peek reads a window counter without incrementing. A missing counter reads
// as zero with a full window ahead.
func (l *Limiter) peek(ctx context.Context, identifier, category string, w Window) (int64, int, error) {
	key := counterKey(category, identifier, w)

	raw, err := l.store.Get(ctx, key)
	if err == kvstore.ErrNotFound {
		return 0, int(w.Duration().Seconds()), nil
	}
	if err != nil {
		return 0, 0, err
	}

	used, _ := strconv.ParseInt(raw, 10, 64)
	reset := int(w.Duration().Seconds())
	if ttl, err := l.store.TTL(ctx, key); err == nil {
		reset = int(ttl.Seconds())
	}
	return used, reset, nil
}

// ClearLimits deletes all three window counters for (identifier, category).
// Administrative reset only.
func (l *Limiter) ClearLimits(ctx context.Context, identifier, category string) error {
	return l.store.Delete(ctx,
		counterKey(category, identifier, WindowBurst),
		counterKey(category, identifier, WindowMinute),
		counterKey(category, identifier, WindowHour),
	)
}

// RetryAfter returns the seconds a rejected caller should wait, never less
// than one so the header is meaningful.
func (r Result) RetryAfter() time.Duration {
	if r.ResetAfter < 1 {
		return time.Second
	}
	return time.Duration(r.ResetAfter) * time.Second
}
