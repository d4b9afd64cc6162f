// Package app builds the storage and quote dependencies shared by the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/STTM-NSU/paper-trading/internal/config"
	"github.com/STTM-NSU/paper-trading/internal/logger"
	"github.com/STTM-NSU/paper-trading/internal/postgres"
	"github.com/STTM-NSU/paper-trading/internal/quote"
	"github.com/STTM-NSU/paper-trading/internal/store"
	"github.com/STTM-NSU/paper-trading/internal/store/memory"
	pgstore "github.com/STTM-NSU/paper-trading/internal/store/postgres"
	"github.com/russianinvestments/invest-api-go-sdk/investgo"
)

func nop() {}

func NewLedgerStore(ctx context.Context, cfg config.StorageConfig, logger logger.Logger) (store.Ledger, func(), error) {
	switch cfg.Driver {
	case config.Memory:
		logger.Warnf("using in-memory storage, nothing survives a restart")
		return memory.New(), nop, nil
	case config.Postgres:
		pgConfig := postgres.NewConfigFromEnv().Setup()
		logger.Debugf("trying to connect to db with: %s", pgConfig.Redacted())
		db, err := postgres.NewDB(pgConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: can't connect to db", err)
		}
		if cfg.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("%w: can't migrate db", err)
			}
		}
		return pgstore.New(db, logger), func() {
			if err := db.Close(); err != nil {
				logger.Errorf("%s: can't close db", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func newProvider(ctx context.Context, cfg config.QuotesConfig, logger logger.Logger) (quote.Source, func(), error) {
	switch cfg.Provider {
	case config.Finnhub:
		return quote.NewFinnhubSource(cfg.Finnhub, logger), nop, nil
	case config.Invest:
		investCfg, err := config.LoadInvestConfig(cfg.Invest)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: can't load invest cfg", err)
		}
		investClient, err := investgo.NewClient(ctx, investCfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: can't create invest client", err)
		}
		return quote.NewInvestSource(investClient, cfg.Invest, logger), func() {
			if err := investClient.Stop(); err != nil {
				logger.Errorf("%s: can't stop invest client", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown quote provider %q", cfg.Provider)
	}
}

// NewQuoteSource returns the configured provider behind the quote cache.
func NewQuoteSource(ctx context.Context, cfg config.QuotesConfig, logger logger.Logger) (quote.Source, func(), error) {
	provider, closeProvider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Cache.Backend {
	case config.RedisCache:
		client, err := quote.ConnectRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			closeProvider()
			return nil, nil, err
		}
		source := quote.NewCachedSource(provider, quote.NewRedisCache(client), cfg.Cache.TTL, cfg.Cache.KeyPrefix, logger)
		return source, func() {
			if err := client.Close(); err != nil {
				logger.Errorf("%s: can't close redis client", err)
			}
			closeProvider()
		}, nil
	default:
		source := quote.NewCachedSource(provider, quote.NewMemoryCache(), cfg.Cache.TTL, cfg.Cache.KeyPrefix, logger)
		return source, closeProvider, nil
	}
}
