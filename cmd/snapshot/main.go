package main

import (
	"cmp"
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/STTM-NSU/paper-trading/internal/app"
	"github.com/STTM-NSU/paper-trading/internal/config"
	"github.com/STTM-NSU/paper-trading/internal/logger"
	"github.com/STTM-NSU/paper-trading/internal/snapshot"
	"github.com/joho/godotenv"
)

const (
	_cfgFilePath = "./configs/ledger.yaml"
)

// snapshot values every account once and exits, for use from cron.
func main() {
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig(cmp.Or(os.Getenv("LEDGER_CONFIG"), _cfgFilePath))
	if err != nil {
		log.Fatalf("%s: can't load cfg", err)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("%s: can't parse log level", err)
	}

	zapLogger, loggerSync, err := logger.NewZapLogger(level)
	if err != nil {
		log.Fatalf("%s: can't init logger", err)
	}
	defer loggerSync()

	if envErr != nil {
		zapLogger.Warnf("can't detect .env file")
	}
	if cfg.Storage.Driver == config.Memory {
		zapLogger.Fatalf("one-shot snapshot needs persistent storage")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ledgerStore, closeStore, err := app.NewLedgerStore(ctx, cfg.Storage, zapLogger)
	if err != nil {
		zapLogger.Fatalf("%s: can't init storage", err)
	}
	defer closeStore()

	quotes, closeQuotes, err := app.NewQuoteSource(ctx, cfg.Quotes, zapLogger)
	if err != nil {
		zapLogger.Fatalf("%s: can't init quotes", err)
	}
	defer closeQuotes()

	if err := snapshot.New(ledgerStore, quotes, cfg.Snapshot, zapLogger).SnapshotAll(ctx); err != nil {
		zapLogger.Errorf("%s: snapshot finished with errors", err)
		return
	}
	zapLogger.Infof("snapshot finished")
}
