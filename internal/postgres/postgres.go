package postgres

import (
	"cmp"
	"context"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var _schema string

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

func NewConfigFromEnv() *Config {
	maxOpen, _ := strconv.Atoi(os.Getenv("POSTGRES_MAX_OPEN_CONNS"))
	return &Config{
		Host:         os.Getenv("POSTGRES_HOST"),
		Port:         os.Getenv("POSTGRES_PORT"),
		Username:     os.Getenv("POSTGRES_USERNAME"),
		Password:     os.Getenv("POSTGRES_PASSWORD"),
		DBName:       os.Getenv("POSTGRES_DB_NAME"),
		SSLMode:      os.Getenv("POSTGRES_SSL_MODE"),
		MaxOpenConns: maxOpen,
	}
}

func (c *Config) Setup() *Config {
	const (
		defaultHost            = "localhost"
		defaultPort            = "5432"
		defaultUsername        = "postgres"
		defaultPassword        = "postgres"
		defaultDBName          = "paper_trading"
		defaultSSLMode         = "disable"
		defaultMaxOpenConns    = 20
		defaultConnMaxLifetime = 30 * time.Minute
	)

	c.Host = cmp.Or(c.Host, defaultHost)
	c.Port = cmp.Or(c.Port, defaultPort)
	if _, err := strconv.Atoi(c.Port); err != nil {
		c.Port = defaultPort
	}
	c.Username = cmp.Or(c.Username, defaultUsername)
	c.Password = cmp.Or(c.Password, defaultPassword)
	c.DBName = cmp.Or(c.DBName, defaultDBName)
	c.SSLMode = cmp.Or(c.SSLMode, defaultSSLMode)
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = defaultMaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = defaultConnMaxLifetime
	}

	return c
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.DBName, c.Password, c.SSLMode,
	)
}

// Redacted is safe to log.
func (c *Config) Redacted() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.DBName, c.SSLMode,
	)
}

func NewDB(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.String())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// Migrate creates the ledger tables if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, _schema); err != nil {
		return fmt.Errorf("%w: can't apply schema", err)
	}
	return nil
}
