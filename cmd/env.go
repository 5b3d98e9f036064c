package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-research/internal/cache"
	"github.com/sells-group/property-research/internal/config"
	"github.com/sells-group/property-research/internal/metrics"
	"github.com/sells-group/property-research/internal/research"
	"github.com/sells-group/property-research/internal/resilience"
	"github.com/sells-group/property-research/internal/store"
	"github.com/sells-group/property-research/internal/worker"
	"github.com/sells-group/property-research/pkg/propdata"
)

// appEnv holds the long-lived components shared by run and serve.
type appEnv struct {
	Store        store.Store
	Registry     *worker.Registry
	Breakers     *resilience.Breakers
	Metrics      *metrics.Metrics
	Orchestrator *research.Orchestrator

	cache *cache.Redis
}

// initStore opens and migrates the configured job store.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, c.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// buildRegistry creates the provider clients and the worker registry.
func buildRegistry(c *config.Config) (*worker.Registry, *resilience.Breakers, error) {
	bcfg := resilience.DefaultBreakerConfig()
	if c.Breaker.Threshold > 0 {
		bcfg.Threshold = c.Breaker.Threshold
	}
	if c.Breaker.CooldownSecs > 0 {
		bcfg.Cooldown = time.Duration(c.Breaker.CooldownSecs) * time.Second
	}
	bcfg.OnChange = func(provider string, from, to resilience.BreakerState) {
		zap.L().Warn("provider breaker state change",
			zap.String("provider", provider),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	breakers := resilience.NewBreakers(bcfg)

	var cat *worker.Catalog
	if c.Catalog.Path != "" {
		var err error
		if cat, err = worker.LoadCatalog(c.Catalog.Path); err != nil {
			return nil, nil, err
		}
	}

	reg, err := worker.NewDefaultRegistry(propdata.NewProviders(c.Providers, breakers), cat)
	if err != nil {
		return nil, nil, eris.Wrap(err, "build worker registry")
	}
	return reg, breakers, nil
}

// researchConfig maps the research config section onto the orchestrator.
func researchConfig(c *config.Config) research.Config {
	return research.Config{
		Concurrency:          c.Research.Concurrency,
		DefaultWorkerTimeout: c.Research.DefaultWorkerTimeout(),
		WorkerTimeouts:       c.Research.Timeouts(),
		WaitTimeout:          c.Research.WaitTimeout(),
		CeilingGrace:         c.Research.CeilingGrace(),
		PortfolioLimit:       c.Research.PortfolioLimit,
	}
}

// initEnv validates the config for mode and builds every component. reg
// receives the Prometheus metrics.
func initEnv(ctx context.Context, c *config.Config, mode string, reg prometheus.Registerer) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st}

	env.Registry, env.Breakers, err = buildRegistry(c)
	if err != nil {
		env.Close(ctx) //nolint:errcheck
		return nil, err
	}

	opts := []research.Option{}
	if reg != nil {
		env.Metrics = metrics.New(reg)
		opts = append(opts, research.WithObserver(env.Metrics))
	}

	if c.Cache.RedisURL != "" {
		client, err := cache.NewRedisClient(c.Cache.RedisURL)
		if err != nil {
			env.Close(ctx) //nolint:errcheck
			return nil, err
		}
		env.cache = cache.NewRedis(client, c.Cache.TTL())
		if err := env.cache.Health(ctx); err != nil {
			zap.L().Warn("redis cache unreachable, continuing without hits", zap.Error(err))
		}
		opts = append(opts, research.WithCache(env.cache))
	}

	env.Orchestrator = research.New(st, env.Registry, researchConfig(c), opts...)
	zap.L().Info("research environment ready",
		zap.String("store", c.Store.Driver),
		zap.Int("workers", env.Registry.Len()),
		zap.Bool("cache", env.cache != nil),
	)
	return env, nil
}

// Close stops background jobs (waiting until ctx is done) and releases
// connections.
func (e *appEnv) Close(ctx context.Context) error {
	var first error
	if e.Orchestrator != nil {
		if err := e.Orchestrator.Close(ctx); err != nil {
			first = err
		}
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil && first == nil {
			first = eris.Wrap(err, "close cache")
		}
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil && first == nil {
			first = eris.Wrap(err, "close store")
		}
	}
	return first
}
