package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ProductCatalog/internal/cache"
	"ProductCatalog/internal/catalog"
	"ProductCatalog/internal/config"
	"ProductCatalog/pkg/kit"
)

const service = "catalog"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", service, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := kit.NewLogger(service, cfg.Log.Level)
	defer func() { _ = log.Sync() }()
	log.Debug("configuration loaded", zap.Stringer("config", &cfg))

	authMode, err := catalog.ParseAuthMode(cfg.Auth.Mode)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeStore()

	resultCache, closeCache, err := openCache(ctx, cfg.Cache, log)
	if err != nil {
		return err
	}
	defer closeCache()

	if !cfg.Contentful.Configured() {
		log.Warn("contentful space or access token not set; sync requests will fail")
	}
	source := catalog.NewContentfulClient(catalog.ContentfulOptions{
		BaseURL:            cfg.Contentful.BaseURL,
		SpaceID:            cfg.Contentful.SpaceID,
		Environment:        cfg.Contentful.Environment,
		AccessToken:        cfg.Contentful.AccessToken,
		ContentType:        cfg.Contentful.ContentType,
		Limit:              cfg.Contentful.Limit,
		Timeout:            cfg.Contentful.Timeout,
		RateLimit:          cfg.Contentful.RateLimit,
		BreakerFailures:    cfg.Breaker.ConsecutiveFailures,
		BreakerOpenTimeout: cfg.Breaker.OpenTimeout,
	})

	var syncLimiter *kit.IPRateLimiter
	if cfg.Sync.RateLimit > 0 {
		proxies, err := cfg.Sync.ProxyPrefixes()
		if err != nil {
			return err
		}
		syncLimiter = kit.NewIPRateLimiter(cfg.Sync.RateLimit, cfg.Sync.RateWindow).TrustProxies(proxies...)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := catalog.NewServer(catalog.ServerDeps{
		Store:       store,
		Cache:       resultCache,
		CacheTTL:    cfg.Cache.TTL,
		Source:      source,
		Log:         log,
		Registry:    reg,
		AuthMode:    authMode,
		SyncLimiter: syncLimiter,
	})

	h := catalog.NewHandler(s, catalog.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsToken:   cfg.Metrics.Token,
	})

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return kit.RunHTTPServer(gCtx, kit.ServerConfig{
			Addr:              cfg.Server.Addr,
			ReadTimeout:       cfg.Server.Timeout.Read,
			WriteTimeout:      cfg.Server.Timeout.Write,
			IdleTimeout:       cfg.Server.Timeout.Idle,
			ReadHeaderTimeout: cfg.Server.Timeout.ReadHeader,
			ShutdownTimeout:   cfg.Shutdown.Timeout,
		}, h, log)
	})

	if cfg.Sync.Interval > 0 {
		g.Go(func() error {
			log.Info("scheduled sync enabled", zap.Duration("interval", cfg.Sync.Interval))
			return s.Syncer.RunEvery(gCtx, cfg.Sync.Interval)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (catalog.Store, func(), error) {
	if cfg.Driver == config.DriverMemory {
		log.Warn("using in-memory product store; data is lost on restart")
		return catalog.NewMemStore(), func() {}, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Warn("close database", zap.Error(err))
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	store := catalog.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Info("connected to postgres")
	return store, closeDB, nil
}

func openCache(ctx context.Context, cfg config.CacheConfig, log *zap.Logger) (cache.Cache, func(), error) {
	if cfg.Driver == config.DriverMemory {
		return cache.NewMemory(), func() {}, nil
	}

	rdb := cache.NewRedisClient(cache.RedisOptions{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	closeRedis := func() { closeQuietly(rdb, log, "close redis") }

	c := cache.NewRedis(rdb)
	// an unreachable cache degrades to store reads, so start anyway
	if err := c.Ping(ctx); err != nil {
		log.Warn("redis not reachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	} else {
		log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}
	return c, closeRedis, nil
}

func closeQuietly(c io.Closer, log *zap.Logger, msg string) {
	if err := c.Close(); err != nil {
		log.Warn(msg, zap.Error(err))
	}
}
