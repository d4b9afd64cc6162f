package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("FINNHUB_API_KEY", "test-key")
	path := writeConfig(t, "log_level: debug\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Ledger.SeedBalance.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, int32(6), cfg.Ledger.SharePrecision)
	assert.Equal(t, 3, cfg.Ledger.TradeRetries)
	assert.Equal(t, Finnhub, cfg.Quotes.Provider)
	assert.Equal(t, "test-key", cfg.Quotes.Finnhub.Token)
	assert.Equal(t, "https://finnhub.io/api/v1", cfg.Quotes.Finnhub.Address)
	assert.Equal(t, MemoryCache, cfg.Quotes.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Quotes.Cache.TTL)
	assert.Equal(t, time.Hour, cfg.Snapshot.Interval)
	assert.Equal(t, 4, cfg.Snapshot.Parallelism)
	assert.Equal(t, Postgres, cfg.Storage.Driver)
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA", "NVDA"}, cfg.Quotes.Popular)
}

func TestLoadConfig_Explicit(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	path := writeConfig(t, `
server:
  port: "9000"
ledger:
  seed_balance: "2500.50"
  share_precision: 4
  trade_retries: 5
quotes:
  provider: invest
  invest:
    config_path: ./invest.yaml
  cache:
    backend: redis
    ttl: 1m
snapshot:
  enabled: true
  interval: 15m
storage:
  driver: memory
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.True(t, cfg.Ledger.SeedBalance.Equal(decimal.RequireFromString("2500.50")))
	assert.Equal(t, int32(4), cfg.Ledger.SharePrecision)
	assert.Equal(t, 5, cfg.Ledger.TradeRetries)
	assert.Equal(t, Invest, cfg.Quotes.Provider)
	assert.Equal(t, 500, cfg.Quotes.Invest.RequestsPerMinute)
	assert.Equal(t, "TQBR", cfg.Quotes.Invest.ClassCode)
	assert.Equal(t, RedisCache, cfg.Quotes.Cache.Backend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Quotes.Cache.RedisURL)
	assert.Equal(t, time.Minute, cfg.Quotes.Cache.TTL)
	assert.True(t, cfg.Snapshot.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Snapshot.Interval)
	assert.Equal(t, Memory, cfg.Storage.Driver)
}

func TestLoadConfig_ZeroSeedBalance(t *testing.T) {
	t.Setenv("FINNHUB_API_KEY", "test-key")

	cfg, err := LoadConfig(writeConfig(t, "ledger:\n  seed_balance: \"0\"\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Ledger.SeedBalance.IsZero(), cfg.Ledger.SeedBalance.String())

	cfg, err = LoadConfig(writeConfig(t, "ledger:\n  share_precision: 2\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Ledger.SeedBalance.Equal(decimal.NewFromInt(100000)))
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		body string
	}{
		{name: "missing finnhub key", body: "quotes:\n  provider: finnhub\n"},
		{name: "unknown provider", env: map[string]string{"FINNHUB_API_KEY": "k"}, body: "quotes:\n  provider: yahoo\n"},
		{name: "redis without url", env: map[string]string{"FINNHUB_API_KEY": "k"}, body: "quotes:\n  cache:\n    backend: redis\n"},
		{name: "negative seed", env: map[string]string{"FINNHUB_API_KEY": "k"}, body: "ledger:\n  seed_balance: \"-1\"\n"},
		{name: "seed out of range", env: map[string]string{"FINNHUB_API_KEY": "k"}, body: "ledger:\n  seed_balance: \"1e5000000\"\n"},
		{name: "precision too high", env: map[string]string{"FINNHUB_API_KEY": "k"}, body: "ledger:\n  share_precision: 12\n"},
		{name: "bad port", env: map[string]string{"FINNHUB_API_KEY": "k"}, body: "server:\n  port: http\n"},
		{name: "bad popular symbol", env: map[string]string{"FINNHUB_API_KEY": "k"}, body: "quotes:\n  popular: [\"A A\"]\n"},
		{name: "unknown driver", env: map[string]string{"FINNHUB_API_KEY": "k"}, body: "storage:\n  driver: mysql\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FINNHUB_API_KEY", "")
			t.Setenv("REDIS_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestRequireJWTSecret(t *testing.T) {
	var cfg Config
	t.Setenv("JWT_SECRET", "")
	assert.Error(t, cfg.RequireJWTSecret())

	t.Setenv("JWT_SECRET", "s3cr3t")
	assert.NoError(t, cfg.RequireJWTSecret())
	assert.Equal(t, "s3cr3t", cfg.JWTSecret)
}
