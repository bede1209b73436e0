package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const envPrefix = "CRYPTOTRACKER_"

// Load merges the TOML file at path (skipped when empty) over Defaults and
// applies environment overrides. A .env file in the working directory is
// loaded first when present. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Server.Addr, "SERVER_ADDR")
	setStr(&cfg.Server.StaticDir, "SERVER_STATIC_DIR")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setBool(&cfg.Server.TrustProxy, "SERVER_TRUST_PROXY")
	setInt(&cfg.Server.RateLimit, "SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.PricesCacheTTL, "SERVER_PRICES_CACHE_TTL")

	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")

	setStr(&cfg.Accounts.Backend, "ACCOUNTS_BACKEND")
	setInt(&cfg.Accounts.BcryptCost, "ACCOUNTS_BCRYPT_COST")
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Mongo.URI, "MONGO_URI")
	setStr(&cfg.Mongo.Database, "MONGO_DATABASE")

	setStr(&cfg.Market.BaseURL, "MARKET_BASE_URL")
	setDuration(&cfg.Market.Timeout, "MARKET_TIMEOUT")
	setInt(&cfg.Market.RequestsPerSecond, "MARKET_REQUESTS_PER_SECOND")
	setInt(&cfg.Market.DegradeAfter, "MARKET_DEGRADE_AFTER")
	setDuration(&cfg.Market.DegradedFor, "MARKET_DEGRADED_FOR")

	setDuration(&cfg.Monitor.Interval, "MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.FetchTimeout, "MONITOR_FETCH_TIMEOUT")
	setFloat64(&cfg.Monitor.LargeMovePct, "MONITOR_LARGE_MOVE_PCT")
	setInt(&cfg.Monitor.DegradedAfter, "MONITOR_DEGRADED_AFTER")

	setInt(&cfg.Notifications.MaxItems, "NOTIFICATIONS_MAX_ITEMS")
	setDuration(&cfg.Notifications.Retention, "NOTIFICATIONS_RETENTION")
	setInt(&cfg.Notifications.FeedSize, "NOTIFICATIONS_FEED_SIZE")

	setBool(&cfg.Kafka.Enabled, "KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "KAFKA_BROKERS")
	setStr(&cfg.Kafka.PriceTopic, "KAFKA_PRICE_TOPIC")
	setStr(&cfg.Kafka.NotificationTopic, "KAFKA_NOTIFICATION_TOPIC")

	setBool(&cfg.Tracing.Enabled, "TRACING_ENABLED")
	setStr(&cfg.Tracing.Endpoint, "TRACING_ENDPOINT")
	setStr(&cfg.Tracing.ServiceName, "TRACING_SERVICE_NAME")

	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// Each setter only touches dst when the variable is set and parses.

func lookup(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}

func setStr(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	parts := strings.Split(v, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
