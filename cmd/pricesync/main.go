package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"skinprice/internal/config"
	"skinprice/internal/db"
	"skinprice/internal/logger"
	"skinprice/internal/observability"
	"skinprice/internal/prices"
	"skinprice/internal/repository"
)

func main() {
	cfg := config.Load()

	log := logger.GetLogger()
	if err := log.Configure(cfg.LogLevel, cfg.LogFormat, cfg.LogOutput, cfg.LogMaxAge); err != nil {
		log.WithError(err).Fatal("invalid logging configuration")
	}
	for _, w := range cfg.Warnings {
		log.WithComponent("config").Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsErr := observability.Start(cfg.MetricsPort)

	var (
		store  prices.PriceStore
		mirror prices.Mirror
	)

	if cfg.DatabaseURL != "" {
		conn, err := db.New(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("could not open postgres")
		}
		if err := db.Migrate(ctx, conn); err != nil {
			log.WithError(err).Fatal("could not migrate schema")
		}
		conn.Close()

		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("could not connect to postgres")
		}
		defer pool.Close()
		store = &repository.PriceRepository{DB: pool}
	} else {
		log.Warn("DATABASE_URL not set, prices will not be persisted")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := db.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, snapshot mirror disabled")
		} else {
			redisClient = client
			defer redisClient.Close()
			mirror = &repository.SnapshotMirror{Client: redisClient, TTL: cfg.MirrorTTL}
		}
	}

	fetcher, err := prices.NewFetcher(prices.FetcherOptions{
		URL:               cfg.Source.URL,
		RelayURL:          cfg.Source.RelayURL,
		BlockedStatuses:   cfg.Source.BlockedStatuses,
		Headers:           cfg.Source.Headers,
		RequestsPerSecond: cfg.FetchRPS,
	})
	if err != nil {
		log.WithError(err).Fatal("invalid price source")
	}

	cache := prices.NewCache()
	var persister *prices.Persister
	if store != nil {
		persister = prices.NewPersister(store, cfg.ChangeThreshold)
	}
	updater := prices.NewUpdater(prices.UpdaterOptions{
		Source:    fetcher,
		Cache:     cache,
		Persister: persister,
		Mirror:    mirror,
		Interval:  cfg.RefreshInterval,
		TTL:       cfg.CacheTTL,
	})
	service := prices.NewService(cache, store, mirror)

	done := make(chan struct{})
	go func() {
		defer close(done)
		updater.Run(ctx)
	}()

	mux := http.NewServeMux()
	mux.Handle("/price", service.Handler())
	mux.Handle("/healthz", prices.HealthHandler(updater))
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(logger.Fields{"addr": cfg.HTTPAddr}).Info("price lookup listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("lookup server stopped")
		}
		stop()
	case err := <-metricsErr:
		log.WithError(err).Error("metrics server stopped")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	<-done
	log.Info("price sync stopped")
}
