package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/facility-enrich/internal/cache"
	"github.com/sells-group/facility-enrich/internal/config"
	"github.com/sells-group/facility-enrich/internal/enrich"
	"github.com/sells-group/facility-enrich/internal/metrics"
	"github.com/sells-group/facility-enrich/internal/resilience"
	"github.com/sells-group/facility-enrich/internal/store"
	"github.com/sells-group/facility-enrich/internal/strategy"
	"github.com/sells-group/facility-enrich/pkg/firecrawl"
	"github.com/sells-group/facility-enrich/pkg/geocode"
	"github.com/sells-group/facility-enrich/pkg/overpass"
)

// appEnv holds the store, cache and orchestrator shared by the commands.
type appEnv struct {
	Store        store.Store
	Orchestrator *enrich.Orchestrator
	Metrics      *metrics.Metrics
	Registry     *prometheus.Registry
	Cache        *cache.RedisCache // nil when redis.url is empty
}

// Close waits for background jobs and releases resources.
func (e *appEnv) Close() {
	if e.Orchestrator != nil {
		e.Orchestrator.Wait()
	}
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode, opens the store and builds the
// orchestrator. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	rc, err := cache.NewRedis(ctx, cfg.Redis.URL)
	if err != nil {
		// The cache is optional; run without it.
		zap.L().Warn("redis unavailable, lookups will not be cached", zap.Error(err))
		rc = nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	env := &appEnv{Store: st, Metrics: m, Registry: reg, Cache: rc}
	env.Orchestrator = newOrchestrator(cfg, st, env.lookupCache(), m)
	return env, nil
}

// lookupCache returns the cache as the interface, or a nil interface when
// caching is disabled.
func (e *appEnv) lookupCache() cache.Cache {
	if e.Cache == nil {
		return nil
	}
	return e.Cache
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: cfg.Store.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func newOrchestrator(c *config.Config, st enrich.Store, lookupCache cache.Cache, m *metrics.Metrics) *enrich.Orchestrator {
	return enrich.New(st, buildRunners(c, lookupCache, m), enrich.Config{
		MaxConcurrent:   c.Enrich.MaxConcurrent,
		StaleAfter:      c.Enrich.StaleAfter,
		Cooldown:        c.Enrich.Cooldown,
		StrategyTimeout: c.Enrich.StrategyTimeout,
	}, enrich.WithMetrics(m))
}

// buildRunners creates the three strategy runners. A missing credential
// leaves the runner's client nil so it always returns an empty result.
func buildRunners(c *config.Config, lookupCache cache.Cache, m *metrics.Metrics) []strategy.Runner {
	guard := func(service string) []strategy.Option {
		return []strategy.Option{
			strategy.WithCache(lookupCache, c.Redis.CacheTTL),
			strategy.WithBreaker(newBreaker(service, c.Resilience, m)),
			strategy.WithRetry(resilience.RetryConfig{
				MaxAttempts:    c.Resilience.MaxAttempts,
				InitialBackoff: c.Resilience.InitialBackoff,
				JitterFraction: 0.25,
				OnRetry:        resilience.RetryLogger(service, "lookup"),
			}),
		}
	}

	var gc geocode.Client
	if c.Geocode.GoogleAPIKey != "" {
		gc = geocode.NewClient(c.Geocode.GoogleAPIKey,
			geocode.WithBaseURL(c.Geocode.BaseURL),
			geocode.WithRateLimit(c.Geocode.RateLimit),
		)
	}

	var fc firecrawl.Client
	if c.Firecrawl.Key != "" {
		fc = firecrawl.NewClient(c.Firecrawl.Key, firecrawl.WithBaseURL(c.Firecrawl.BaseURL))
	}

	var oc overpass.Client
	if c.Overpass.BaseURL != "" {
		oc = overpass.NewClient(
			overpass.WithBaseURL(c.Overpass.BaseURL),
			overpass.WithRateLimit(c.Overpass.RateLimit),
		)
	}

	zap.L().Info("strategy runners configured",
		zap.Bool("geocode", gc != nil),
		zap.Bool("web_search", fc != nil),
		zap.Bool("osm_lookup", oc != nil),
		zap.Bool("cache", lookupCache != nil),
	)

	return []strategy.Runner{
		strategy.NewGeocodeRunner(gc, guard("geocode")...),
		strategy.NewWebSearchRunner(fc,
			strategy.WithSearchHint(c.Enrich.SearchHint),
			strategy.WithSearchResults(c.Enrich.SearchResults),
			strategy.WithGuard(guard("firecrawl")...),
		),
		strategy.NewOSMRunner(oc, c.Enrich.OSMRadiusMeters, guard("overpass")...),
	}
}

func newBreaker(service string, rc config.ResilienceConfig, m *metrics.Metrics) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(service, resilience.BreakerConfig{
		FailureThreshold: rc.FailureThreshold,
		Cooldown:         rc.BreakerCooldown,
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("circuit breaker state change",
				zap.String("service", service),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
			m.SetBreakerState(service, int(to))
		},
	})
}
