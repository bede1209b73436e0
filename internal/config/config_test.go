package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval.Duration)
	assert.Equal(t, 10*time.Second, cfg.Monitor.FetchTimeout.Duration)
	assert.Equal(t, 10.0, cfg.Monitor.LargeMovePct)
	assert.Equal(t, 50, cfg.Notifications.MaxItems)
	assert.Equal(t, 7*24*time.Hour, cfg.Notifications.Retention.Duration)
	assert.Equal(t, 5, cfg.Notifications.FeedSize)
	assert.False(t, cfg.Server.TrustProxy)
	assert.Equal(t, 3, cfg.Market.DegradeAfter)
	assert.Equal(t, 5*time.Minute, cfg.Market.DegradedFor.Duration)
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[monitor]
interval = "5s"

[accounts]
backend = "postgres"

[kafka]
enabled = true
brokers = ["k1:9092", "k2:9092"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval.Duration)
	assert.Equal(t, 10*time.Second, cfg.Monitor.FetchTimeout.Duration)
	assert.Equal(t, "postgres", cfg.Accounts.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CRYPTOTRACKER_REDIS_ENABLED", "true")
	t.Setenv("CRYPTOTRACKER_REDIS_ADDR", "redis:6379")
	t.Setenv("CRYPTOTRACKER_MONITOR_INTERVAL", "1m")
	t.Setenv("CRYPTOTRACKER_MONITOR_LARGE_MOVE_PCT", "7.5")
	t.Setenv("CRYPTOTRACKER_SERVER_CORS_ORIGINS", " http://a.test , ,http://b.test")
	t.Setenv("CRYPTOTRACKER_NOTIFICATIONS_MAX_ITEMS", "not-a-number")
	t.Setenv("CRYPTOTRACKER_SERVER_TRUST_PROXY", "true")
	t.Setenv("CRYPTOTRACKER_MARKET_DEGRADED_FOR", "2m")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Minute, cfg.Monitor.Interval.Duration)
	assert.Equal(t, 7.5, cfg.Monitor.LargeMovePct)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 50, cfg.Notifications.MaxItems)
	assert.True(t, cfg.Server.TrustProxy)
	assert.Equal(t, 2*time.Minute, cfg.Market.DegradedFor.Duration)
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Accounts.Backend = "sqlite"
	cfg.Monitor.Interval.Duration = 0
	cfg.Kafka.Enabled = true
	cfg.Kafka.Brokers = nil
	cfg.LogLevel = "loud"
	cfg.Market.DegradeAfter = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"accounts.backend", "monitor.interval", "kafka.brokers", "log_level", "market.degrade_after"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_BackendRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Accounts.Backend = "mongo"
	cfg.Mongo.Database = ""
	assert.ErrorContains(t, cfg.Validate(), "mongo.uri and mongo.database")

	cfg = Defaults()
	cfg.Accounts.Backend = "postgres"
	cfg.Postgres.DSN = ""
	assert.ErrorContains(t, cfg.Validate(), "postgres.dsn")
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	defaults := Defaults()
	assert.Equal(t, defaults.Monitor, cfg.Monitor)
	assert.Equal(t, defaults.Notifications, cfg.Notifications)
	assert.Equal(t, defaults.Market, cfg.Market)
	assert.Equal(t, defaults.Server.RateWindow, cfg.Server.RateWindow)
}
