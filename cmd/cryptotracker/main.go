package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cryptotracker/internal/accounts"
	"cryptotracker/internal/cache"
	"cryptotracker/internal/config"
	"cryptotracker/internal/database"
	"cryptotracker/internal/events"
	"cryptotracker/internal/handlers"
	"cryptotracker/internal/logger"
	"cryptotracker/internal/monitor"
	"cryptotracker/internal/notifications"
	"cryptotracker/internal/prices"
	"cryptotracker/internal/session"
	"cryptotracker/internal/tracing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	instance := flag.String("instance", "cryptotracker-1", "Instance ID for this server")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger.InitLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Log.Error("Failed to shutdown tracer", zap.Error(err))
			}
		}()
	}

	var (
		kv            cache.Store
		rc            cache.ResponseCache
		marketLimiter cache.RateLimiter
		apiLimiter    cache.RateLimiter
	)
	if cfg.Redis.Enabled {
		store, err := cache.NewRedis(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Instance: *instance,
		})
		if err != nil {
			logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer store.Close()
		kv, rc = store, store
		marketLimiter = cache.NewRedisRateLimiter(store.Client(), cfg.Market.RequestsPerSecond)
		apiLimiter = cache.NewRedisWindowLimiter(store.Client(), cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
		logger.Log.Info("Using Redis state store", zap.String("addr", cfg.Redis.Addr))
	} else {
		mem := cache.NewMemory()
		kv, rc = mem, mem
		marketLimiter = cache.NewMemoryRateLimiter(cfg.Market.RequestsPerSecond, time.Second)
		apiLimiter = cache.NewMemoryRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
		logger.Log.Warn("Redis disabled, user state is kept in memory only")
	}

	users, closeUsers := openUserStore(ctx, cfg)
	defer closeUsers()

	coingeckoOpts := []prices.Option{
		prices.WithBaseURL(cfg.Market.BaseURL),
		prices.WithTimeout(cfg.Market.Timeout.Duration),
	}
	if cfg.Market.RequestsPerSecond > 0 {
		coingeckoOpts = append(coingeckoOpts, prices.WithLimiter(marketLimiter))
	}
	market := prices.NewFallback(prices.NewCoinGecko(coingeckoOpts...),
		prices.WithDegradeAfter(cfg.Market.DegradeAfter),
		prices.WithDegradedFor(cfg.Market.DegradedFor.Duration),
		prices.WithFetchTimeout(cfg.Market.Timeout.Duration),
	)

	var publisher events.Publisher = events.Noop{}
	if cfg.Kafka.Enabled {
		kp, err := events.NewKafkaPublisher(events.Options{
			Brokers:           cfg.Kafka.Brokers,
			PriceTopic:        cfg.Kafka.PriceTopic,
			NotificationTopic: cfg.Kafka.NotificationTopic,
		})
		if err != nil {
			logger.Log.Fatal("Failed to create Kafka publisher", zap.Error(err))
		}
		publisher = kp
		logger.Log.Info("Publishing to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	sessions := session.NewManager(kv, rc, market, publisher, session.Options{
		Monitor: monitor.Config{
			Interval:      cfg.Monitor.Interval.Duration,
			FetchTimeout:  cfg.Monitor.FetchTimeout.Duration,
			LargeMovePct:  cfg.Monitor.LargeMovePct,
			DegradedAfter: cfg.Monitor.DegradedAfter,
		},
		Notifications: notifications.Options{
			MaxItems:  cfg.Notifications.MaxItems,
			Retention: cfg.Notifications.Retention.Duration,
		},
		FeedSize: cfg.Notifications.FeedSize,
	})

	h := handlers.New(accounts.New(users, cfg.Accounts.BcryptCost), sessions, market, rc, handlers.Options{
		PricesCacheTTL: cfg.Server.PricesCacheTTL.Duration,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))

	var root http.Handler = mux
	if cfg.Server.RateLimit > 0 {
		root = handlers.RateLimit(apiLimiter, cfg.Server.TrustProxy)(root)
	}
	root = handlers.Logging(handlers.CORS(cfg.Server.CORSOrigins)(root))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Log.Info("CryptoTracker starting",
			zap.String("addr", cfg.Server.Addr),
			zap.String("instance", *instance),
			zap.String("accounts_backend", cfg.Accounts.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		sessions.CloseAll()
		publisher.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Log.Error("Server stopped with error", zap.Error(err))
	}
}

// openUserStore connects the configured account backend and returns it with
// its cleanup.
func openUserStore(ctx context.Context, cfg *config.Config) (accounts.UserStore, func()) {
	switch strings.ToLower(cfg.Accounts.Backend) {
	case "postgres":
		db, err := database.OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		}
		return database.NewPostgresUserStore(db), func() { db.Close() }
	case "mongo":
		store, err := database.OpenMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			logger.Log.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		return store, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				logger.Log.Warn("Failed to close MongoDB client", zap.Error(err))
			}
		}
	default:
		logger.Log.Warn("Using in-memory account store, accounts are lost on restart")
		return accounts.NewMemoryUserStore(), func() {}
	}
}
