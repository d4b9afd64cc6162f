package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const _popularParallelism = 4

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type balanceRequest struct {
	Balance *decimal.Decimal `json:"balance"`
}

type amountRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type favoriteRequest struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

type tradeRequest struct {
	Symbol   string           `json:"symbol"`
	Quantity *decimal.Decimal `json:"quantity"`
	Amount   *decimal.Decimal `json:"amount"`
	Price    *decimal.Decimal `json:"price"`
}

func (t tradeRequest) toModel(accountID string, side model.Side) (model.TradeRequest, error) {
	req := model.TradeRequest{
		AccountID: accountID,
		Symbol:    t.Symbol,
		Side:      side,
		PriceHint: t.Price,
	}
	switch {
	case t.Quantity != nil && t.Amount != nil:
		return model.TradeRequest{}, fmt.Errorf("%w: give either quantity or amount, not both", model.ErrInvalidInput)
	case t.Quantity != nil:
		req.Amount = model.Shares(*t.Quantity)
	case t.Amount != nil:
		req.Amount = model.Notional(*t.Amount)
	default:
		return model.TradeRequest{}, fmt.Errorf("%w: quantity or amount is required", model.ErrInvalidInput)
	}
	return req, nil
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getQuote(w http.ResponseWriter, r *http.Request) {
	symbol, err := model.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	q, err := h.quotes.GetQuote(r.Context(), symbol)
	if err != nil {
		if !errors.Is(err, model.ErrQuoteUnavailable) {
			err = fmt.Errorf("%w: %w", model.ErrQuoteUnavailable, err)
		}
		h.writeMappedError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, q)
}

// popularStocks quotes the configured symbols; symbols without a quote are left out.
func (h *Handler) popularStocks(w http.ResponseWriter, r *http.Request) {
	quotes := make([]*model.Quote, len(h.popular))

	var g errgroup.Group
	g.SetLimit(_popularParallelism)
	for i, symbol := range h.popular {
		g.Go(func() error {
			q, err := h.quotes.GetQuote(r.Context(), symbol)
			if err != nil {
				h.logger.Warnf("%s: can't quote popular stock %s", err, symbol)
				return nil
			}
			quotes[i] = &q
			return nil
		})
	}
	_ = g.Wait()

	res := make([]model.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q != nil {
			res = append(res, *q)
		}
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) openAccount(w http.ResponseWriter, r *http.Request) {
	account, created, err := h.trades.OpenAccount(r.Context(), accountIDFromContext(r.Context()))
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.snapshotAfterWrite(r.Context(), account.ID)
	}
	h.writeJSON(w, status, account)
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	account, err := h.trades.Account(r.Context(), accountIDFromContext(r.Context()))
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balanceResponse{Balance: account.CashBalance})
}

func (h *Handler) setBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	if req.Balance == nil {
		h.writeMappedError(w, r, fmt.Errorf("%w: balance is required", model.ErrInvalidInput))
		return
	}

	h.changeCash(w, r, func(ctx context.Context, id string) (model.Account, error) {
		return h.trades.SetBalance(ctx, id, *req.Balance)
	})
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	h.changeCashBy(w, r, h.trades.Deposit)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.changeCashBy(w, r, h.trades.Withdraw)
}

func (h *Handler) changeCashBy(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, id string, amount decimal.Decimal) (model.Account, error),
) {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	if req.Amount == nil {
		h.writeMappedError(w, r, fmt.Errorf("%w: amount is required", model.ErrInvalidInput))
		return
	}

	h.changeCash(w, r, func(ctx context.Context, id string) (model.Account, error) {
		return op(ctx, id, *req.Amount)
	})
}

func (h *Handler) changeCash(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, id string) (model.Account, error),
) {
	id := accountIDFromContext(r.Context())
	account, err := op(r.Context(), id)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	h.snapshotAfterWrite(r.Context(), id)
	h.writeJSON(w, http.StatusOK, balanceResponse{Balance: account.CashBalance})
}

func (h *Handler) holdings(w http.ResponseWriter, r *http.Request) {
	positions, err := h.trades.Positions(r.Context(), accountIDFromContext(r.Context()))
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	h.writeJSON(w, http.StatusOK, positions)
}

func (h *Handler) buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, model.Buy)
}

func (h *Handler) sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, model.Sell)
}

func (h *Handler) trade(w http.ResponseWriter, r *http.Request, side model.Side) {
	var body tradeRequest
	if err := decodeBody(r, &body); err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	id := accountIDFromContext(r.Context())
	req, err := body.toModel(id, side)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}

	res, err := h.trades.ExecuteTrade(r.Context(), req)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	h.snapshotAfterWrite(r.Context(), id)
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) favorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.trades.Favorites(r.Context(), accountIDFromContext(r.Context()))
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	if favorites == nil {
		favorites = []model.Favorite{}
	}
	h.writeJSON(w, http.StatusOK, favorites)
}

func (h *Handler) addFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeMappedError(w, r, err)
		return
	}

	favorite, added, err := h.trades.AddFavorite(r.Context(), accountIDFromContext(r.Context()), req.Symbol, req.Name)
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, favorite)
}

func (h *Handler) removeFavorite(w http.ResponseWriter, r *http.Request) {
	if err := h.trades.RemoveFavorite(r.Context(), accountIDFromContext(r.Context()), chi.URLParam(r, "symbol")); err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	period, err := ParsePeriod(r.URL.Query().Get("filter"))
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}

	records, err := h.values.History(r.Context(), accountIDFromContext(r.Context()), period.Since(h.now().UTC()))
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	if records == nil {
		records = []model.ValueHistoryRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	record, err := h.values.Snapshot(r.Context(), accountIDFromContext(r.Context()))
	if err != nil {
		h.writeMappedError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, record)
}

// snapshotAfterWrite records a valuation after a successful write.
// Its failure never fails the request that triggered it.
func (h *Handler) snapshotAfterWrite(ctx context.Context, accountID string) {
	if _, err := h.values.Snapshot(context.WithoutCancel(ctx), accountID); err != nil {
		h.logger.Warnf("%s: can't snapshot account %s after write", err, accountID)
	}
}
