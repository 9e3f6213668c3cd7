package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/veloxcart/catalog-cache/internal/builder"
	"github.com/veloxcart/catalog-cache/internal/cache"
	"github.com/veloxcart/catalog-cache/internal/generation"
	"github.com/veloxcart/catalog-cache/internal/pricingctx"
	"github.com/veloxcart/catalog-cache/internal/query"
	"github.com/veloxcart/catalog-cache/internal/updater"
	"github.com/veloxcart/catalog-cache/internal/warmer"
	"github.com/veloxcart/catalog-cache/pkg/config"
	"github.com/veloxcart/catalog-cache/pkg/db"
	"github.com/veloxcart/catalog-cache/pkg/logger"
	"github.com/veloxcart/catalog-cache/pkg/metrics"
	"github.com/veloxcart/catalog-cache/pkg/migrate"
	"github.com/veloxcart/catalog-cache/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cache-warmer"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cache-warmer",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewCacheMetrics(prometheus.DefaultRegisterer)

	store, err := generation.NewStore(dbClient.DB(), logg, cfg.Builder.StalenessThreshold)
	if err != nil {
		logg.Error(context.Background(), "failed to create generation store", err)
		os.Exit(1)
	}
	if err := store.EnsureSlots(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to seed generation slots", err)
		os.Exit(1)
	}

	resolver, err := pricingctx.NewResolver(dbClient.DB(), logg, cfg.Resolver.DefaultCustomerGroups)
	if err != nil {
		logg.Error(context.Background(), "failed to create context resolver", err)
		os.Exit(1)
	}

	cacheBuilder, err := builder.New(builder.Params{
		DB:          dbClient.DB(),
		Logger:      logg,
		Generations: store,
		Resolver:    resolver,
		Metrics:     metricsCollector,
		Config:      cfg.Builder,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create builder", err)
		os.Exit(1)
	}

	lock, err := warmer.NewRedisLock(redisClient, cfg.Warmer.LockKey, cfg.Warmer.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create warm lock", err)
		os.Exit(1)
	}

	cacheUpdater, err := updater.New(updater.Params{
		DB:                dbClient.DB(),
		Logger:            logg,
		Generations:       store,
		Resolver:          resolver,
		BuildLock:         lock,
		Metrics:           metricsCollector,
		ContentionBackoff: cfg.Updater.ContentionBackoff,
		ShowZeroPrices:    cfg.Builder.ShowZeroPrices,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create updater", err)
		os.Exit(1)
	}

	registry := query.NewRegistry()
	engine, err := query.New(query.Params{
		DB:          dbClient.DB(),
		Logger:      logg,
		Generations: store,
		Registry:    registry,
		Metrics:     metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create query engine", err)
		os.Exit(1)
	}

	cacheService, err := cache.New(cache.Params{
		Logger:   logg,
		Builder:  cacheBuilder,
		Updater:  cacheUpdater,
		Engine:   engine,
		Resolver: resolver,
		Registry: registry,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cache service", err)
		os.Exit(1)
	}

	service, err := warmer.NewService(warmer.Params{
		Logger:   logg,
		Cache:    cacheService,
		Lock:     lock,
		Interval: cfg.Warmer.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create warmer service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting cache warmer")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cache warmer stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cache warmer shutting down gracefully")
}
