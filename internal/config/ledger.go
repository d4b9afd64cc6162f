package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port              string        `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

const (
	_portDefault              = "8080"
	_readHeaderTimeoutDefault = 10 * time.Second
	_shutdownTimeoutDefault   = 15 * time.Second
)

func (c *ServerConfig) Setup() error {
	if c.Port == "" {
		c.Port = _portDefault
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("%w: invalid port %q", err, c.Port)
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = _readHeaderTimeoutDefault
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = _shutdownTimeoutDefault
	}
	return nil
}

type LedgerConfig struct {
	Seed           *decimal.Decimal `yaml:"seed_balance"` // unset means the default, "0" is kept
	SeedBalance    decimal.Decimal  `yaml:"-"`
	SharePrecision int32            `yaml:"share_precision"` // max fractional digits of a share count
	TradeRetries   int              `yaml:"trade_retries"`   // attempts on storage conflicts
}

const (
	_sharePrecisionDefault = 6
	_sharePrecisionMax     = 8
	_tradeRetriesDefault   = 3
)

var _seedBalanceDefault = decimal.NewFromInt(100000)

func (c *LedgerConfig) Setup() error {
	c.SeedBalance = _seedBalanceDefault
	if c.Seed != nil {
		if err := model.CheckBounds("seed balance", *c.Seed); err != nil {
			return err
		}
		if c.Seed.IsNegative() {
			return fmt.Errorf("negative seed balance %s", *c.Seed)
		}
		c.SeedBalance = *c.Seed
	}
	if c.SharePrecision <= 0 {
		c.SharePrecision = _sharePrecisionDefault
	}
	if c.SharePrecision > _sharePrecisionMax {
		return fmt.Errorf("share precision %d is above %d", c.SharePrecision, _sharePrecisionMax)
	}
	if c.TradeRetries <= 0 {
		c.TradeRetries = _tradeRetriesDefault
	}
	return nil
}

type QuoteProvider string

const (
	Finnhub QuoteProvider = "finnhub"
	Invest  QuoteProvider = "invest"
)

type CacheBackend string

const (
	MemoryCache CacheBackend = "memory"
	RedisCache  CacheBackend = "redis"
)

type FinnhubConfig struct {
	Address           string        `yaml:"address"`
	Token             string        `yaml:"-"` // FINNHUB_API_KEY
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
}

type InvestConfig struct {
	ConfigPath        string `yaml:"config_path"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	ClassCode         string `yaml:"class_code"` // appended to bare tickers, e.g. SBER -> SBER_TQBR
}

type CacheConfig struct {
	Backend   CacheBackend  `yaml:"backend"`
	TTL       time.Duration `yaml:"ttl"`
	KeyPrefix string        `yaml:"key_prefix"`
	RedisURL  string        `yaml:"-"` // REDIS_URL
}

type QuotesConfig struct {
	Provider QuoteProvider `yaml:"provider"`
	Popular  []string      `yaml:"popular"` // served by /api/popular-stocks
	Finnhub  FinnhubConfig `yaml:"finnhub"`
	Invest   InvestConfig  `yaml:"invest"`
	Cache    CacheConfig   `yaml:"cache"`
}

const (
	_finnhubAddressDefault = "https://finnhub.io/api/v1"
	_finnhubRPMDefault     = 55 // free tier allows 60 T/M
	_finnhubTimeoutDefault = 5 * time.Second
	_investConfigDefault   = "./configs/invest.yaml"
	_investRPMDefault      = 500 // 600 T/M
	_investClassDefault    = "TQBR"
	_cacheTTLDefault       = 30 * time.Second
	_cacheKeyPrefixDefault = "quotes:"
)

var _popularDefault = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA", "NVDA"}

func (c *QuotesConfig) Setup() error {
	if c.Provider == "" {
		c.Provider = Finnhub
	}
	if len(c.Popular) == 0 {
		c.Popular = slices.Clone(_popularDefault)
	}
	for i, symbol := range c.Popular {
		normalized, err := model.NormalizeSymbol(symbol)
		if err != nil {
			return fmt.Errorf("%w: bad popular symbol", err)
		}
		c.Popular[i] = normalized
	}

	switch c.Provider {
	case Finnhub:
		if c.Finnhub.Address == "" {
			c.Finnhub.Address = _finnhubAddressDefault
		}
		c.Finnhub.Token = os.Getenv("FINNHUB_API_KEY")
		if c.Finnhub.Token == "" {
			return fmt.Errorf("empty finnhub api key")
		}
		if c.Finnhub.RequestsPerMinute <= 0 {
			c.Finnhub.RequestsPerMinute = _finnhubRPMDefault
		}
		if c.Finnhub.Timeout <= 0 {
			c.Finnhub.Timeout = _finnhubTimeoutDefault
		}
	case Invest:
		if c.Invest.ConfigPath == "" {
			c.Invest.ConfigPath = _investConfigDefault
		}
		if c.Invest.RequestsPerMinute <= 0 {
			c.Invest.RequestsPerMinute = _investRPMDefault
		}
		if c.Invest.ClassCode == "" {
			c.Invest.ClassCode = _investClassDefault
		}
	default:
		return fmt.Errorf("unknown quote provider %q", c.Provider)
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = MemoryCache
	}
	switch c.Cache.Backend {
	case MemoryCache:
	case RedisCache:
		c.Cache.RedisURL = os.Getenv("REDIS_URL")
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("empty redis url for redis quote cache")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = _cacheTTLDefault
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = _cacheKeyPrefixDefault
	}

	return nil
}

type SnapshotConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Parallelism int           `yaml:"parallelism"`
}

const (
	_snapshotIntervalDefault    = 1 * time.Hour
	_snapshotParallelismDefault = 4
)

func (c *SnapshotConfig) Setup() {
	if c.Interval <= 0 {
		c.Interval = _snapshotIntervalDefault
	}
	if c.Parallelism <= 0 {
		c.Parallelism = _snapshotParallelismDefault
	}
}

type StorageDriver string

const (
	Postgres StorageDriver = "postgres"
	Memory   StorageDriver = "memory"
)

type StorageConfig struct {
	Driver  StorageDriver `yaml:"driver"`
	Migrate bool          `yaml:"migrate"`
}

func (c *StorageConfig) Setup() error {
	if c.Driver == "" {
		c.Driver = Postgres
	}
	if c.Driver != Postgres && c.Driver != Memory {
		return fmt.Errorf("unknown storage driver %q", c.Driver)
	}
	return nil
}

type Config struct {
	LogLevel  string         `yaml:"log_level"`
	JWTSecret string         `yaml:"-"` // JWT_SECRET
	Server    ServerConfig   `yaml:"server"`
	Ledger    LedgerConfig   `yaml:"ledger"`
	Quotes    QuotesConfig   `yaml:"quotes"`
	Snapshot  SnapshotConfig `yaml:"snapshot"`
	Storage   StorageConfig  `yaml:"storage"`
}

func (c *Config) ValidateAndSetup() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if err := c.Server.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup server", err)
	}
	if err := c.Ledger.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup ledger", err)
	}
	if err := c.Quotes.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup quotes", err)
	}
	c.Snapshot.Setup()
	if err := c.Storage.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup storage", err)
	}

	return nil
}

// RequireJWTSecret reads JWT_SECRET; only the API binary needs it.
func (c *Config) RequireJWTSecret() error {
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		return fmt.Errorf("empty jwt secret")
	}
	return nil
}

func LoadConfig(filename string) (Config, error) {
	var cfg Config
	input, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("%w: can't read file", err)
	}

	if err := yaml.Unmarshal(input, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: can't unmarshal config", err)
	}

	if err := cfg.ValidateAndSetup(); err != nil {
		return cfg, fmt.Errorf("%w: can't setup cfg", err)
	}

	return cfg, nil
}
