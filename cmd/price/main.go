package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"skinprice/internal/config"
	"skinprice/internal/db"
	"skinprice/internal/logger"
	"skinprice/internal/prices"
	"skinprice/internal/repository"
)

// go run cmd/price/main.go -name="AK-47 | Redline (Field-Tested)"
// go run cmd/price/main.go -sync -name="? Karambit | Doppler"
func main() {
	name := flag.String("name", "", "item display name or normalized key")
	syncFirst := flag.Bool("sync", false, "run one sync cycle before the lookup")
	flag.Parse()

	cfg := config.Load()
	log := logger.GetLogger()
	if err := log.Configure(cfg.LogLevel, cfg.LogFormat, "stderr", 0); err != nil {
		log.WithError(err).Fatal("invalid logging configuration")
	}

	if *name == "" && !*syncFirst {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var (
		store  prices.PriceStore
		mirror prices.Mirror
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Warn("postgres unavailable")
		} else {
			defer pool.Close()
			store = &repository.PriceRepository{DB: pool}
		}
	}
	if cfg.RedisURL != "" {
		client, err := db.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable")
		} else {
			defer client.Close()
			mirror = &repository.SnapshotMirror{Client: client, TTL: cfg.MirrorTTL}
		}
	}

	cache := prices.NewCache()
	if *syncFirst {
		fetcher, err := prices.NewFetcher(prices.FetcherOptions{
			URL:             cfg.Source.URL,
			RelayURL:        cfg.Source.RelayURL,
			BlockedStatuses: cfg.Source.BlockedStatuses,
			Headers:         cfg.Source.Headers,
		})
		if err != nil {
			log.WithError(err).Fatal("invalid price source")
		}
		var persister *prices.Persister
		if store != nil {
			persister = prices.NewPersister(store, cfg.ChangeThreshold)
		}
		res := prices.NewUpdater(prices.UpdaterOptions{
			Source:    fetcher,
			Cache:     cache,
			Persister: persister,
			Mirror:    mirror,
			TTL:       cfg.CacheTTL,
		}).Tick(ctx)
		fmt.Printf("sync %s: %d items, %d written\n", res.Outcome, res.Items, res.Written)
		if res.Err != nil {
			fmt.Fprintln(os.Stderr, res.Err)
		}
		if res.PersistErr != nil {
			fmt.Fprintln(os.Stderr, res.PersistErr)
		}
	}

	if *name == "" {
		return
	}
	price, ok := prices.NewService(cache, store, mirror).PriceFor(ctx, *name)
	if !ok {
		fmt.Printf("%s: no price\n", prices.Normalize(*name))
		os.Exit(1)
	}
	fmt.Printf("%s: %.2f\n", prices.Normalize(*name), price)
}
