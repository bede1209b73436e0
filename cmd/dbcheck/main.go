// Command dbcheck verifies that the stores named in the config are reachable.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"cryptotracker/internal/cache"
	"cryptotracker/internal/config"
	"cryptotracker/internal/database"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	timeout := flag.Duration("timeout", 10*time.Second, "Overall check timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	failed := false
	check := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			failed = true
			fmt.Printf("FAIL %s: %v\n", name, err)
			return
		}
		fmt.Printf("OK   %s\n", name)
	}

	switch cfg.Accounts.Backend {
	case "postgres":
		check("postgres", func(ctx context.Context) error {
			db, err := database.OpenPostgres(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer db.Close()
			return database.NewPostgresUserStore(db).Ping(ctx)
		})
	case "mongo":
		check("mongo", func(ctx context.Context) error {
			store, err := database.OpenMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
			if err != nil {
				return err
			}
			defer store.Close(context.Background())
			return store.Ping(ctx)
		})
	default:
		fmt.Printf("SKIP accounts: %s backend has nothing to check\n", cfg.Accounts.Backend)
	}

	if cfg.Redis.Enabled {
		check("redis", func(ctx context.Context) error {
			store, err := cache.NewRedis(ctx, cache.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err != nil {
				return err
			}
			return store.Close()
		})
	}

	if failed {
		os.Exit(1)
	}
}
