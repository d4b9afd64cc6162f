// Package trade is the only writer of account cash balances and positions.
//
// Every write takes the account lock of the store, recomputes from the locked state
// and is retried when the store reports a conflict.
package trade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/STTM-NSU/paper-trading/internal/config"
	"github.com/STTM-NSU/paper-trading/internal/ledger"
	"github.com/STTM-NSU/paper-trading/internal/logger"
	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/STTM-NSU/paper-trading/internal/quote"
	"github.com/STTM-NSU/paper-trading/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const _maxAccountIDLen = 128

type Coordinator struct {
	store  store.Ledger
	quotes quote.Source
	cfg    config.LedgerConfig

	logger logger.Logger

	now func() time.Time
}

func NewCoordinator(store store.Ledger, quotes quote.Source, cfg config.LedgerConfig, logger logger.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		quotes: quotes,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func checkAccountID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty account id", model.ErrInvalidInput)
	}
	if len(id) > _maxAccountIDLen {
		return fmt.Errorf("%w: account id longer than %d bytes", model.ErrInvalidInput, _maxAccountIDLen)
	}
	return nil
}

// withAccount runs fn under the account lock, retrying on store conflicts.
// fn must derive everything it writes from tx since it may run more than once.
func (c *Coordinator) withAccount(ctx context.Context, accountID string, fn func(tx store.Tx) error) error {
	retries := max(c.cfg.TradeRetries, 1)

	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		err = c.store.WithAccountLock(ctx, accountID, fn)
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		c.logger.Warnf("%s: conflict on account %s, attempt %d/%d", err, accountID, attempt, retries)
	}
	return fmt.Errorf("%w: %w", model.ErrConcurrentModification, err)
}

type validTrade struct {
	symbol string
	side   model.Side
	amount model.AmountSpec
	hint   *decimal.Decimal
}

func (c *Coordinator) validate(req model.TradeRequest) (validTrade, error) {
	if err := checkAccountID(req.AccountID); err != nil {
		return validTrade{}, err
	}
	symbol, err := model.NormalizeSymbol(req.Symbol)
	if err != nil {
		return validTrade{}, err
	}
	side, err := model.ParseSide(string(req.Side))
	if err != nil {
		return validTrade{}, err
	}

	switch req.Amount.Kind() {
	case model.SharesAmount:
		if err := model.CheckBounds("quantity", req.Amount.Value()); err != nil {
			return validTrade{}, err
		}
		if !req.Amount.Value().IsPositive() {
			return validTrade{}, fmt.Errorf("%w: quantity must be positive, got %s", model.ErrInvalidInput, req.Amount.Value())
		}
		if err := ledger.CheckPrecision(req.Amount.Value(), c.cfg.SharePrecision); err != nil {
			return validTrade{}, err
		}
	case model.NotionalAmount:
		if side != model.Buy {
			return validTrade{}, fmt.Errorf("%w: notional amount is only accepted for buys", model.ErrInvalidInput)
		}
		if err := model.CheckBounds("amount", req.Amount.Value()); err != nil {
			return validTrade{}, err
		}
		if !req.Amount.Value().IsPositive() {
			return validTrade{}, fmt.Errorf("%w: amount must be positive, got %s", model.ErrInvalidInput, req.Amount.Value())
		}
	default:
		return validTrade{}, fmt.Errorf("%w: missing trade amount", model.ErrInvalidInput)
	}

	if req.PriceHint != nil {
		if err := model.CheckBounds("price", *req.PriceHint); err != nil {
			return validTrade{}, err
		}
		if !req.PriceHint.IsPositive() {
			return validTrade{}, fmt.Errorf("%w: price must be positive, got %s", model.ErrInvalidInput, *req.PriceHint)
		}
	}

	return validTrade{
		symbol: symbol,
		side:   side,
		amount: req.Amount,
		hint:   req.PriceHint,
	}, nil
}

func (c *Coordinator) resolvePrice(ctx context.Context, t validTrade) (decimal.Decimal, error) {
	if t.hint != nil {
		return *t.hint, nil
	}

	q, err := c.quotes.GetQuote(ctx, t.symbol)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return decimal.Zero, fmt.Errorf("%w: trade abandoned while quoting %s", ctxErr, t.symbol)
	}
	if err != nil {
		if errors.Is(err, model.ErrQuoteUnavailable) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("%w: %w", model.ErrQuoteUnavailable, err)
	}
	if !q.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %s for %s", model.ErrQuoteUnavailable, q.Price, t.symbol)
	}
	return q.Price, nil
}

// ExecuteTrade prices the trade, then applies it to the account atomically.
// Input errors are reported before any read; a trade abandoned before the lock leaves no trace.
func (c *Coordinator) ExecuteTrade(ctx context.Context, req model.TradeRequest) (model.TradeResult, error) {
	log := c.logger.With(
		"account_id", req.AccountID,
		"symbol", req.Symbol,
		"side", req.Side,
	)

	t, err := c.validate(req)
	if err != nil {
		log.Infof("%s: trade rejected", err)
		return model.TradeResult{}, err
	}
	log = log.With("amount", t.amount.String())

	res, err := c.executeTrade(ctx, req.AccountID, t)
	if err != nil {
		if isBusinessError(err) {
			log.Infof("%s: trade rejected", err)
		} else {
			log.Errorf("%s: trade failed", err)
		}
		return model.TradeResult{}, err
	}

	log.Infof("trade %s executed: %s %s @ %s, cash %s",
		res.TradeID, res.Side, res.Quantity, res.Price, res.CashBalance)
	return res, nil
}

func (c *Coordinator) executeTrade(ctx context.Context, accountID string, t validTrade) (model.TradeResult, error) {
	price, err := c.resolvePrice(ctx, t)
	if err != nil {
		return model.TradeResult{}, err
	}

	quantity := t.amount.Value()
	if t.amount.Kind() == model.NotionalAmount {
		quantity, err = ledger.SharesForNotional(t.amount.Value(), price, c.cfg.SharePrecision)
		if err != nil {
			return model.TradeResult{}, err
		}
	}

	var applied ledger.Result
	err = c.withAccount(ctx, accountID, func(tx store.Tx) error {
		position, err := tx.Position(ctx, t.symbol)
		if err != nil {
			return fmt.Errorf("%w: can't load position", err)
		}

		switch t.side {
		case model.Buy:
			applied, err = ledger.ApplyBuy(position, tx.Account(), t.symbol, quantity, price)
		case model.Sell:
			applied, err = ledger.ApplySell(position, tx.Account(), t.symbol, quantity, price)
		}
		if err != nil {
			return err
		}

		if err := tx.SaveAccount(ctx, applied.Account); err != nil {
			return fmt.Errorf("%w: can't save account", err)
		}
		if applied.Closed {
			if err := tx.DeletePosition(ctx, t.symbol); err != nil {
				return fmt.Errorf("%w: can't delete position", err)
			}
			return nil
		}
		if err := tx.SavePosition(ctx, applied.Position); err != nil {
			return fmt.Errorf("%w: can't save position", err)
		}
		return nil
	})
	if err != nil {
		return model.TradeResult{}, err
	}

	result := model.TradeResult{
		TradeID:     uuid.New(),
		AccountID:   accountID,
		Symbol:      t.symbol,
		Side:        t.side,
		Quantity:    quantity,
		Price:       price,
		Amount:      applied.Amount,
		CashBalance: applied.Account.CashBalance,
		ExecutedAt:  c.now().UTC(),
	}
	if !applied.Closed {
		position := applied.Position
		result.Position = &position
	}
	if t.side == model.Sell {
		pnl := applied.RealizedPnL
		result.RealizedPnL = &pnl
	}
	return result, nil
}

func isBusinessError(err error) bool {
	for _, target := range []error{
		model.ErrInvalidInput,
		model.ErrInsufficientFunds,
		model.ErrInsufficientShares,
		model.ErrNoSuchPosition,
		model.ErrAccountNotFound,
		model.ErrQuoteUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
