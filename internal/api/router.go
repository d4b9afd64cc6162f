// Package api exposes the ledger over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/STTM-NSU/paper-trading/internal/logger"
	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/STTM-NSU/paper-trading/internal/quote"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

type Trader interface {
	ExecuteTrade(ctx context.Context, req model.TradeRequest) (model.TradeResult, error)
	OpenAccount(ctx context.Context, accountID string) (model.Account, bool, error)
	Account(ctx context.Context, accountID string) (model.Account, error)
	Positions(ctx context.Context, accountID string) ([]model.Position, error)
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (model.Account, error)
	Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (model.Account, error)
	SetBalance(ctx context.Context, accountID string, balance decimal.Decimal) (model.Account, error)

	AddFavorite(ctx context.Context, accountID, symbol, name string) (model.Favorite, bool, error)
	RemoveFavorite(ctx context.Context, accountID, symbol string) error
	Favorites(ctx context.Context, accountID string) ([]model.Favorite, error)
}

type Valuer interface {
	Snapshot(ctx context.Context, accountID string) (model.ValueHistoryRecord, error)
	History(ctx context.Context, accountID string, since time.Time) ([]model.ValueHistoryRecord, error)
}

type Handler struct {
	trades  Trader
	values  Valuer
	quotes  quote.Source
	popular []string
	secret  []byte

	logger logger.Logger

	now func() time.Time
}

func NewHandler(trades Trader, values Valuer, quotes quote.Source, popular []string, jwtSecret string, logger logger.Logger) *Handler {
	return &Handler{
		trades:  trades,
		values:  values,
		quotes:  quotes,
		popular: popular,
		secret:  []byte(jwtSecret),
		logger:  logger,
		now:     time.Now,
	}
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/healthz", h.healthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/quotes/{symbol}", h.getQuote)
		r.Get("/popular-stocks", h.popularStocks)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)

			r.Post("/account", h.openAccount)

			r.Get("/balance", h.getBalance)
			r.Post("/balance", h.setBalance)
			r.Post("/balance/deposit", h.deposit)
			r.Post("/balance/withdraw", h.withdraw)

			r.Get("/holdings", h.holdings)
			r.Post("/holdings/buy", h.buy)
			r.Post("/holdings/sell", h.sell)

			r.Get("/favorites", h.favorites)
			r.Post("/favorites", h.addFavorite)
			r.Delete("/favorites/{symbol}", h.removeFavorite)

			r.Get("/user-history", h.history)
			r.Post("/user-history", h.snapshot)
		})
	})

	return r
}
