// The gateway binary wires the traffic-control layer in front of the
// storefront's data access: per-category rate limiting, circuit-protected
// and queued catalog reads, namespace caching, and admin endpoints to
// inspect or reset all of it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/nimble-gus/megatienda-core/cache"
	"github.com/nimble-gus/megatienda-core/config"
	"github.com/nimble-gus/megatienda-core/health"
	"github.com/nimble-gus/megatienda-core/kvstore"
	"github.com/nimble-gus/megatienda-core/observe"
	"github.com/nimble-gus/megatienda-core/ratelimit"
	"github.com/nimble-gus/megatienda-core/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := observe.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("gateway exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	err := rdb.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		// Everything built on the store fails open or absorbs, so a down
		// store degrades protection rather than blocking startup.
		log.Warn("redis unreachable at startup, continuing degraded",
			zap.String("addr", cfg.Redis.Addr),
			zap.Error(err))
	}
	store := kvstore.NewRedisStore(rdb, kvstore.WithPrefix(cfg.Redis.Prefix))

	metrics, err := observe.NewMetrics(otel.Meter("megatienda-core"))
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	limiter := ratelimit.New(store, cfg.RateLimit.Categories,
		ratelimit.WithLogger(log.Named("ratelimit")),
		ratelimit.WithMetrics(metrics),
		ratelimit.WithFallbackCategory(cfg.RateLimit.FallbackCategory),
	)

	breakers := resilience.NewManager(resilience.ManagerConfig{
		Defaults: resilience.BreakerConfig{
			FailureRatio: cfg.Breaker.FailureRatio,
			OpenTimeout:  cfg.Breaker.OpenTimeout,
			MinRequests:  cfg.Breaker.MinRequests,
		},
		MonitoringPeriod: cfg.Breaker.MonitoringPeriod,
	},
		resilience.WithManagerStore(store),
		resilience.WithManagerLogger(log.Named("circuit")),
		resilience.WithManagerMetrics(metrics),
	)
	breakers.StartSweeper(ctx)

	queue := resilience.NewQueryQueue(resilience.QueueConfig{
		MaxConcurrent:    cfg.Queue.MaxConcurrent,
		DispatchInterval: cfg.Queue.DispatchInterval,
	},
		resilience.WithQueueLogger(log.Named("queue")),
		resilience.WithQueueMetrics(metrics),
	)
	defer queue.Close()

	caches := cache.NewManager(store, cache.Config{DefaultTTL: cfg.Cache.DefaultTTL},
		cache.WithLogger(log.Named("cache")),
		cache.WithMetrics(metrics),
	)

	catalog := resilience.NewProtector("catalog",
		resilience.WithProtectorBreaker(breakers.Breaker("database")),
		resilience.WithProtectorQueue(queue),
		resilience.WithProtectorTimeout(cfg.Timeouts.Query),
		resilience.WithProtectorMetrics(metrics),
	)

	checks := health.NewAggregator(health.AggregatorConfig{})
	checks.Register(health.NewStoreChecker(store))
	checks.Register(health.NewBreakerChecker(breakers))

	router := newRouter(cfg, log, limiter, breakers, queue, caches, catalog, checks)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("gateway listening",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("env", cfg.Env),
		zap.Int("queue_max_concurrent", cfg.Queue.MaxConcurrent))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newRouter(
	cfg *config.Config,
	log *zap.Logger,
	limiter *ratelimit.Limiter,
	breakers *resilience.Manager,
	queue *resilience.QueryQueue,
	caches *cache.Manager,
	catalog *resilience.Protector,
	checks *health.Aggregator,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/livez", health.LivenessHandler())
	r.Get("/healthz", health.Handler(checks))

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter, ratelimit.MiddlewareOptions{Category: ratelimit.CategoryPublic}))
		r.Get("/api/products", productsHandler(caches, catalog))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter, ratelimit.MiddlewareOptions{Category: ratelimit.CategoryAdmin}))

		r.Get("/breakers", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, breakers.Snapshots())
		})
		r.Post("/breakers/{name}/reset", func(w http.ResponseWriter, req *http.Request) {
			name := chi.URLParam(req, "name")
			breakers.Reset(req.Context(), name)
			log.Info("breaker reset by admin", zap.String("breaker", name))
			writeJSON(w, http.StatusOK, map[string]string{"breaker": name, "state": "closed"})
		})

		r.Get("/queue", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, queue.Stats())
		})

		r.Post("/ratelimit/clear", func(w http.ResponseWriter, req *http.Request) {
			identifier := req.URL.Query().Get("identifier")
			category := req.URL.Query().Get("category")
			if identifier == "" || category == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "identifier and category are required"})
				return
			}
			if err := limiter.ClearLimits(req.Context(), identifier, category); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "clear failed"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"identifier": identifier, "category": category, "limits": "cleared"})
		})

		r.Get("/cache/stats", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, caches.Stats(req.Context()))
		})
		r.Post("/cache/cleanup", func(w http.ResponseWriter, req *http.Request) {
			repaired := caches.CleanupExpired(req.Context())
			writeJSON(w, http.StatusOK, map[string]int{"repaired": repaired})
		})
		r.Post("/cache/invalidate/{group}", func(w http.ResponseWriter, req *http.Request) {
			group := chi.URLParam(req, "group")
			switch group {
			case "products":
				caches.InvalidateProducts(req.Context())
			case "orders":
				caches.InvalidateOrders(req.Context())
			case "multimedia":
				caches.InvalidateMultimedia(req.Context())
			default:
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown cache group"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"group": group, "cache": "invalidated"})
		})
	})

	return r
}

// product is the demo catalog row served until the real storefront data
// layer is plugged in behind the protector.
type product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int    `json:"price_cents"`
}

func productsHandler(caches *cache.Manager, catalog *resilience.Protector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var products []product
		err := caches.GetOrLoad(r.Context(), cache.NamespaceProducts, "list", &products, 0,
			func(ctx context.Context) (any, error) {
				loaded, err := resilience.Protect(ctx, catalog, fetchProducts)
				if err != nil {
					return nil, err
				}
				return loaded, nil
			})
		if err != nil {
			resilience.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, products)
	}
}

// fetchProducts stands in for the persistent-store query.
func fetchProducts(ctx context.Context) ([]product, error) {
	return []product{
		{ID: "sku-1001", Name: "Enamel mug", Price: 1450},
		{ID: "sku-1002", Name: "Canvas tote", Price: 2300},
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
