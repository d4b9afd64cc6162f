package main

import (
	"cmp"
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/STTM-NSU/paper-trading/internal/api"
	"github.com/STTM-NSU/paper-trading/internal/app"
	"github.com/STTM-NSU/paper-trading/internal/config"
	"github.com/STTM-NSU/paper-trading/internal/logger"
	"github.com/STTM-NSU/paper-trading/internal/server"
	"github.com/STTM-NSU/paper-trading/internal/snapshot"
	"github.com/STTM-NSU/paper-trading/internal/trade"
	"github.com/joho/godotenv"
)

const (
	_cfgFilePath = "./configs/ledger.yaml"
)

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
	if err := cfg.RequireJWTSecret(); err != nil {
		zapLogger.Fatalf("%s: can't setup auth", err)
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

	coordinator := trade.NewCoordinator(ledgerStore, quotes, cfg.Ledger, zapLogger.With("component", "trade"))
	snapshotter := snapshot.New(ledgerStore, quotes, cfg.Snapshot, zapLogger.With("component", "snapshot"))

	if cfg.Snapshot.Enabled {
		go snapshotter.Run(ctx)
	}

	handler := api.NewHandler(coordinator, snapshotter, quotes, cfg.Quotes.Popular, cfg.JWTSecret, zapLogger.With("component", "api"))
	srv := server.NewHTTPServer(ctx, cfg.Server, api.NewRouter(handler))

	zapLogger.Infof("listening on :%s with %s storage and %s quotes", cfg.Server.Port, cfg.Storage.Driver, cfg.Quotes.Provider)
	if err := srv.Run(ctx); err != nil {
		zapLogger.Errorf("%s: server stopped", err)
		return
	}
	zapLogger.Infof("server stopped")
}
