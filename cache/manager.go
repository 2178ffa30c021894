package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nimble-gus/megatienda-core/kvstore"
	"github.com/nimble-gus/megatienda-core/observe"
)

// DefaultTTL is the lifetime assigned to entries stored without an explicit
// TTL, and the one CleanupExpired backfills onto keys found without expiry.
const DefaultTTL = 5 * time.Minute

// Config tunes a cache Manager. The zero value is usable.
type Config struct {
	// DefaultTTL applies when Set is called with ttl=0.
	DefaultTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultTTL
	}
	return c
}

// Manager organizes cached values into fixed namespaces and performs coarse
// per-namespace invalidation.
//
// Every method absorbs store failures: reads report a miss, writes and
// invalidations no-op. Callers must treat the cache as advisory.
type Manager struct {
	store   kvstore.Store
	cfg     Config
	logger  *zap.Logger
	metrics *observe.Metrics
	group   singleflight.Group
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used to report absorbed store errors.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records hit/miss counts per namespace.
func WithMetrics(metrics *observe.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a cache manager over the shared keyed store.
func NewManager(store kvstore.Store, cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get unmarshals the cached value for key in the namespace into out.
// Returns false on miss, on decode failure, or on any store error.
func (m *Manager) Get(ctx context.Context, ns Namespace, key string, out any) bool {
	raw, err := m.store.Get(ctx, ns.Key(key))
	if err != nil {
		if err != kvstore.ErrNotFound {
			m.logger.Warn("cache get failed, treating as miss",
				zap.String("namespace", string(ns)),
				zap.String("key", key),
				zap.Error(err))
		}
		m.metrics.RecordCacheRequest(ctx, string(ns), "miss")
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		m.logger.Warn("cache entry undecodable, treating as miss",
			zap.String("namespace", string(ns)),
			zap.String("key", key),
			zap.Error(err))
		m.metrics.RecordCacheRequest(ctx, string(ns), "miss")
		return false
	}
	m.metrics.RecordCacheRequest(ctx, string(ns), "hit")
	return true
}

// Set stores value under key in the namespace as JSON. ttl=0 uses the
// configured default. Failures are logged and absorbed.
func (m *Manager) Set(ctx context.Context, ns Namespace, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		m.logger.Warn("cache value not serializable, skipping",
			zap.String("namespace", string(ns)),
			zap.String("key", key),
			zap.Error(err))
		return
	}
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}
	if err := m.store.Set(ctx, ns.Key(key), string(raw), ttl); err != nil {
		m.logger.Warn("cache set failed, skipping",
			zap.String("namespace", string(ns)),
			zap.String("key", key),
			zap.Error(err))
	}
}

// GetOrLoad returns the cached value for key, loading and storing it on a
// miss. Concurrent loads for the same namespace/key are collapsed into a
// single call. Load errors propagate; store errors on the way in or out are
// absorbed as usual.
func (m *Manager) GetOrLoad(ctx context.Context, ns Namespace, key string, out any, ttl time.Duration, load func(context.Context) (any, error)) error {
	if m.Get(ctx, ns, key, out) {
		return nil
	}

	// The flight serves every waiter, so it must not die with whichever
	// caller happened to start it.
	loadCtx := context.WithoutCancel(ctx)
	raw, err, _ := m.group.Do(ns.Key(key), func() (any, error) {
		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		m.Set(loadCtx, ns, key, value, ttl)
		return json.Marshal(value)
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), out)
}

// InvalidateProducts removes every key in the products, filters, categories
// and featured namespaces. Colors, orders and cart data are untouched; color
// entries age out on their own TTL.
func (m *Manager) InvalidateProducts(ctx context.Context) {
	m.invalidate(ctx, NamespaceProducts, NamespaceFilters, NamespaceCategories, NamespaceFeatured)
}

// InvalidateOrders removes every key in the orders, sales and kpis
// namespaces.
func (m *Manager) InvalidateOrders(ctx context.Context) {
	m.invalidate(ctx, NamespaceOrders, NamespaceSales, NamespaceKPIs)
}

// InvalidateMultimedia removes every key in the hero and banners namespaces.
func (m *Manager) InvalidateMultimedia(ctx context.Context) {
	m.invalidate(ctx, NamespaceHero, NamespaceBanners)
}

// InvalidateCart removes the single cart entry belonging to userID.
func (m *Manager) InvalidateCart(ctx context.Context, userID string) {
	if err := m.store.Delete(ctx, NamespaceCart.Key(userID)); err != nil {
		m.logger.Warn("cart invalidation failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}
	m.logger.Info("cache invalidated",
		zap.String("namespace", string(NamespaceCart)),
		zap.String("user_id", userID))
}

// invalidate resolves each namespace's pattern to the concrete keys
// currently stored and bulk-deletes them.
func (m *Manager) invalidate(ctx context.Context, namespaces ...Namespace) {
	for _, ns := range namespaces {
		keys, err := m.store.Keys(ctx, ns.Pattern())
		if err != nil {
			m.logger.Warn("cache invalidation scan failed",
				zap.String("namespace", string(ns)),
				zap.Error(err))
			continue
		}
		if len(keys) == 0 {
			continue
		}
		if err := m.store.Delete(ctx, keys...); err != nil {
			m.logger.Warn("cache invalidation delete failed",
				zap.String("namespace", string(ns)),
				zap.Int("keys", len(keys)),
				zap.Error(err))
			continue
		}
		m.logger.Info("cache invalidated",
			zap.String("namespace", string(ns)),
			zap.Int("keys", len(keys)))
	}
}

// Stats reports the current key count per namespace. Namespaces whose scan
// fails report zero.
func (m *Manager) Stats(ctx context.Context) map[Namespace]int {
	stats := make(map[Namespace]int, len(Namespaces()))
	for _, ns := range Namespaces() {
		keys, err := m.store.Keys(ctx, ns.Pattern())
		if err != nil {
			m.logger.Warn("cache stats scan failed",
				zap.String("namespace", string(ns)),
				zap.Error(err))
			stats[ns] = 0
			continue
		}
		stats[ns] = len(keys)
	}
	return stats
}

// CleanupExpired assigns the default TTL to any cached key found without
// one, so entries written by older code paths cannot accumulate forever.
// Returns the number of keys repaired.
func (m *Manager) CleanupExpired(ctx context.Context) int {
	repaired := 0
	for _, ns := range Namespaces() {
		keys, err := m.store.Keys(ctx, ns.Pattern())
		if err != nil {
			m.logger.Warn("cache cleanup scan failed",
				zap.String("namespace", string(ns)),
				zap.Error(err))
			continue
		}
		for _, key := range keys {
			_, err := m.store.TTL(ctx, key)
			if err != kvstore.ErrNoTTL {
				continue
			}
			raw, err := m.store.Get(ctx, key)
			if err != nil {
				continue
			}
			if err := m.store.Set(ctx, key, raw, m.cfg.DefaultTTL); err != nil {
				m.logger.Warn("cache cleanup reset failed",
					zap.String("key", key),
					zap.Error(err))
				continue
			}
			repaired++
		}
	}
	if repaired > 0 {
		m.logger.Info("cache cleanup assigned default TTLs", zap.Int("keys", repaired))
	}
	return repaired
}
