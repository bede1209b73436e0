package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptotracker/internal/logger"
	"cryptotracker/internal/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Store is the per-user key/value state (watchlist, notifications, profile).
// Every Set replaces the whole value in one write.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ResponseCache holds short-lived rendered responses.
type ResponseCache interface {
	GetCache(ctx context.Context, key, endpoint string) (string, error)
	SetCache(ctx context.Context, key, value string, ttl time.Duration, endpoint string) error
	InvalidateByPrefix(ctx context.Context, prefix, endpoint string)
}

// UserKey namespaces a state kind by username, e.g. "watchlist_alice".
func UserKey(kind, username string) string {
	return kind + "_" + username
}

var (
	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"endpoint", "instance"},
	)
	cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"endpoint", "instance"},
	)
)

func init() {
	prometheus.MustRegister(cacheHitsTotal)
	prometheus.MustRegister(cacheMissesTotal)
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Instance string
}

// RedisStore keeps user state and cached responses in Redis.
type RedisStore struct {
	rdb      *redis.Client
	instance string
}

// NewRedis connects to Redis and verifies the connection with a PING.
func NewRedis(ctx context.Context, opts Options) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb, instance: opts.Instance}, nil
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.rdb
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

// GetCache returns the cached value, or "" on a miss.
func (s *RedisStore) GetCache(ctx context.Context, key, endpoint string) (string, error) {
	val, err := s.rdb.Get(ctx, responseKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		cacheMissesTotal.WithLabelValues(endpoint, s.instance).Inc()
		return "", nil
	}
	if err != nil {
		return "", err
	}
	cacheHitsTotal.WithLabelValues(endpoint, s.instance).Inc()
	return val, nil
}

func (s *RedisStore) SetCache(ctx context.Context, key, value string, ttl time.Duration, endpoint string) error {
	return s.rdb.Set(ctx, responseKey(key), value, ttl).Err()
}

func (s *RedisStore) InvalidateByPrefix(ctx context.Context, prefix, endpoint string) {
	tracer := otel.Tracer(tracing.TracerName)
	ctx, span := tracer.Start(ctx, "InvalidateByPrefix")
	defer span.End()

	keys, err := s.getAllKeys(ctx, responseKey(prefix))
	if err != nil {
		logger.Log.Error("Failed to get cache keys for invalidation",
			zap.String("prefix", prefix),
			zap.String("endpoint", endpoint),
			zap.String("instance", s.instance),
			zap.Error(err),
		)
		return
	}

	invalidatedCount := 0
	for _, key := range keys {
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			logger.Log.Warn("Failed to invalidate cache key",
				zap.String("key", key),
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
		} else {
			invalidatedCount++
		}
	}

	logger.Log.Debug("Cache invalidation completed",
		zap.String("prefix", prefix),
		zap.String("endpoint", endpoint),
		zap.String("instance", s.instance),
		zap.Int("invalidated_keys", invalidatedCount),
	)
}

// getAllKeys walks SCAN until the cursor wraps to 0.
func (s *RedisStore) getAllKeys(ctx context.Context, prefix string) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		foundKeys, nextCursor, err := s.rdb.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, foundKeys...)
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Response cache entries live under their own prefix so a prefix scan can
// never touch user state.
func responseKey(key string) string {
	return "resp:" + key
}

var (
	_ Store         = (*RedisStore)(nil)
	_ ResponseCache = (*RedisStore)(nil)
)
