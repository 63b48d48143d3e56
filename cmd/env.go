package main

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/bmf"
	"github.com/sells-group/nonprofit-verify/internal/cache"
	"github.com/sells-group/nonprofit-verify/internal/fetcher"
	"github.com/sells-group/nonprofit-verify/internal/metrics"
	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/internal/namematch"
	"github.com/sells-group/nonprofit-verify/internal/reconcile"
	"github.com/sells-group/nonprofit-verify/internal/resilience"
	"github.com/sells-group/nonprofit-verify/internal/source"
	"github.com/sells-group/nonprofit-verify/internal/stateregistry"
	"github.com/sells-group/nonprofit-verify/internal/store"
	"github.com/sells-group/nonprofit-verify/internal/verify"
	"github.com/sells-group/nonprofit-verify/pkg/irs990"
	"github.com/sells-group/nonprofit-verify/pkg/propublica"
)

const userAgent = "nonprofit-verify/1.0 (+https://github.com/sells-group/nonprofit-verify)"

// verifyEnv holds the initialized engine and everything it owns.
type verifyEnv struct {
	Service  *verify.Service
	Store    store.Store
	Cache    *cache.Cache
	Archive  *irs990.Archive
	Registry *bmf.Registry
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Close releases resources held by the environment.
func (e *verifyEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// envOptions selects which datasets initVerify loads up front.
type envOptions struct {
	restoreSnapshot bool
	loadFilingIndex bool
}

// initVerify opens the store and cache, builds the three source adapters
// and the reconciler, and returns the service. Callers should defer
// env.Close().
func initVerify(ctx context.Context, opts envOptions) (*verifyEnv, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	env := &verifyEnv{Registry: &bmf.Registry{}, Metrics: m, Gatherer: reg}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	env.Store = st
	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	backend, err := initCacheStore(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}
	c := cache.New(backend, cache.Options{
		PositiveTTL: cfg.Cache.PositiveTTL(),
		NegativeTTL: cfg.Cache.NegativeTTL(),
		KeyPrefix:   cfg.Cache.KeyPrefix,
		Metrics:     m,
	})
	env.Cache = c

	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("fetch")
	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  userAgent,
		Timeout:    5 * time.Minute,
		RatePerSec: 20,
		Retry:      retry,
	})
	router := &fetcher.Router{HTTP: httpFetcher, FTP: fetcher.NewFTPFetcher(time.Minute)}

	env.Archive = irs990.NewArchive(httpFetcher,
		irs990.WithBaseURL(cfg.Filing.BaseURL),
		irs990.WithIndexYears(cfg.Filing.IndexYears),
		irs990.WithChunkSize(int64(cfg.Filing.ChunkKB)*1024),
	)

	api := propublica.NewClient(
		propublica.WithBaseURL(cfg.LookupAPI.BaseURL),
		propublica.WithRateLimit(cfg.LookupAPI.RatePerSec),
	)

	guard := func(origin model.Origin, timeout time.Duration) source.Guard {
		g := source.Guard{Timeout: timeout, Metrics: m}
		if origin != model.OriginRegistry {
			g.Breaker = source.NewBreaker(origin, cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeoutSecs, m)
		}
		return g
	}
	adapters := []source.Adapter{
		source.NewRegistry(env.Registry, guard(model.OriginRegistry, time.Second)),
		source.NewLookupAPI(api, guard(model.OriginLookupAPI, time.Duration(cfg.LookupAPI.TimeoutSecs)*time.Second)),
		source.NewFiling(env.Archive, guard(model.OriginFiling, time.Duration(cfg.Filing.TimeoutSecs)*time.Second)),
	}

	precedence := reconcile.DefaultPrecedence()
	if cfg.Reconcile.PrecedenceFile != "" {
		precedence, err = reconcile.LoadPrecedence(cfg.Reconcile.PrecedenceFile)
		if err != nil {
			env.Close()
			return nil, err
		}
	}

	if err := os.MkdirAll(cfg.Registry.TempDir, 0o755); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "create registry temp dir")
	}

	env.Service = verify.New(verify.Deps{
		Reconciler: reconcile.New(adapters, precedence),
		Cache:      c,
		Registry:   env.Registry,
		Loader:     &bmf.Loader{Router: router, TempDir: cfg.Registry.TempDir},
		Filings:    env.Archive,
		Store:      st,
		States:     initStates(backend, m),
	}, verify.Options{
		Matcher:           namematch.NewMatcher(cfg.Matcher.Threshold, cfg.Matcher.PageSize, cfg.Matcher.MaxPageSize),
		RegistryLocations: cfg.Registry.Locations,
		BatchMaxSize:      cfg.Batch.MaxSize,
		BatchConcurrency:  cfg.Batch.Concurrency,
		Metrics:           m,
	})

	if opts.restoreSnapshot {
		if ok, err := env.Service.RestoreSnapshot(ctx); err != nil {
			zap.L().Warn("restore registry snapshot", zap.Error(err))
		} else if !ok {
			zap.L().Warn("no persisted registry snapshot, run `refresh registry`")
		}
	}
	if opts.loadFilingIndex {
		if _, err := env.Service.RefreshFilingIndex(ctx); err != nil {
			zap.L().Warn("filing index unavailable, filing lookups will report unavailable", zap.Error(err))
		}
	}

	return env, nil
}

func initCacheStore(ctx context.Context) (cache.Store, error) {
	if cfg.Cache.Backend != "redis" {
		return cache.NewMemoryStore(10 * time.Minute), nil
	}
	rs, err := cache.DialRedis(ctx, cache.RedisOptions{
		URL:         cfg.Redis.URL,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: time.Duration(cfg.Redis.DialTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, eris.Wrap(err, "connect redis cache")
	}
	return rs, nil
}

// initStates builds the CA, NY, and TX registry checks. They share the
// record cache backend under their own key prefix. Returns nil when
// disabled so the service skips them.
func initStates(backend cache.Store, m *metrics.Metrics) verify.StateChecker {
	if !cfg.States.Enabled {
		return nil
	}
	// The CA search is an ASP.NET form that ties view state to a session cookie.
	jar, _ := cookiejar.New(nil)
	timeout := time.Duration(cfg.States.TimeoutSecs) * time.Second
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("state registry")
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  "NonprofitVerify/1.0 (nonprofit verification service)",
		RatePerSec: cfg.States.RatePerSec,
		Retry:      retry,
		Client:     &http.Client{Timeout: timeout, Jar: jar},
	})
	return stateregistry.New([]stateregistry.Checker{
		stateregistry.NewCalifornia(f, cfg.States.CaliforniaURL),
		stateregistry.NewNewYork(f, cfg.States.NewYorkURL),
		stateregistry.NewTexas(f, cfg.States.TexasURL),
	}, stateregistry.Options{Store: backend, Timeout: timeout, Metrics: m})
}
