// Package ledger holds the pure accounting rules for paper trades.
// Nothing here performs I/O; callers load state, apply a rule and persist the Result.
package ledger

import (
	"fmt"

	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/shopspring/decimal"
)

// AverageCostPlaces bounds the precision of a recomputed average cost,
// the only derived value that is not an exact decimal product.
const AverageCostPlaces int32 = 10

type Result struct {
	Account     model.Account
	Position    model.Position
	Closed      bool            // position reached zero and must be deleted
	Amount      decimal.Decimal // cost for a buy, proceeds for a sell
	RealizedPnL decimal.Decimal // zero for buys
}

func checkTrade(quantity, price decimal.Decimal) error {
	if err := model.CheckBounds("quantity", quantity); err != nil {
		return err
	}
	if err := model.CheckBounds("price", price); err != nil {
		return err
	}
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", model.ErrInvalidInput, quantity)
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", model.ErrInvalidInput, price)
	}
	return nil
}

// ApplyBuy debits quantity*price from the account and adds quantity to the position,
// recomputing the weighted average cost. A nil position means nothing is held yet.
func ApplyBuy(position *model.Position, account model.Account, symbol string, quantity, price decimal.Decimal) (Result, error) {
	if err := checkTrade(quantity, price); err != nil {
		return Result{}, err
	}

	cost := quantity.Mul(price)
	if cost.GreaterThan(account.CashBalance) {
		return Result{}, fmt.Errorf("%w: cost %s exceeds balance %s", model.ErrInsufficientFunds, cost, account.CashBalance)
	}

	oldQty, oldAvg := decimal.Zero, decimal.Zero
	if position != nil {
		oldQty, oldAvg = position.Quantity, position.AverageCost
	}
	newQty := oldQty.Add(quantity)
	newAvg := oldQty.Mul(oldAvg).Add(cost).DivRound(newQty, AverageCostPlaces)

	account.CashBalance = account.CashBalance.Sub(cost)

	return Result{
		Account: account,
		Position: model.Position{
			AccountID:   account.ID,
			Symbol:      symbol,
			Quantity:    newQty,
			AverageCost: newAvg,
		},
		Amount: cost,
	}, nil
}

// ApplySell credits quantity*price to the account and reduces the position.
// Average cost is left untouched; realized P&L is reported, not stored.
func ApplySell(position *model.Position, account model.Account, symbol string, quantity, price decimal.Decimal) (Result, error) {
	if err := checkTrade(quantity, price); err != nil {
		return Result{}, err
	}
	if position == nil {
		return Result{}, fmt.Errorf("%w: %s", model.ErrNoSuchPosition, symbol)
	}
	if quantity.GreaterThan(position.Quantity) {
		return Result{}, fmt.Errorf("%w: selling %s of %s, holding %s",
			model.ErrInsufficientShares, quantity, symbol, position.Quantity)
	}

	proceeds := quantity.Mul(price)
	remaining := position.Quantity.Sub(quantity)

	account.CashBalance = account.CashBalance.Add(proceeds)

	return Result{
		Account: account,
		Position: model.Position{
			AccountID:   account.ID,
			Symbol:      symbol,
			Quantity:    remaining,
			AverageCost: position.AverageCost,
		},
		Closed:      remaining.IsZero(),
		Amount:      proceeds,
		RealizedPnL: proceeds.Sub(quantity.Mul(position.AverageCost)),
	}, nil
}

// SharesForNotional converts a cash amount into a share count at price,
// truncated toward zero to places decimals so the cost never exceeds notional.
func SharesForNotional(notional, price decimal.Decimal, places int32) (decimal.Decimal, error) {
	if err := model.CheckBounds("amount", notional); err != nil {
		return decimal.Zero, err
	}
	if err := model.CheckBounds("price", price); err != nil {
		return decimal.Zero, err
	}
	if !notional.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: notional must be positive, got %s", model.ErrInvalidInput, notional)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: price must be positive, got %s", model.ErrInvalidInput, price)
	}

	// QuoRem truncates: price*shares + rem == notional with rem >= 0
	shares, _ := notional.QuoRem(price, places)
	if !shares.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s buys no shares at %s", model.ErrInvalidInput, notional, price)
	}
	return shares, nil
}

// CheckPrecision rejects share counts with more than places fractional digits.
func CheckPrecision(quantity decimal.Decimal, places int32) error {
	if err := model.CheckBounds("quantity", quantity); err != nil {
		return err
	}
	if !quantity.Equal(quantity.Truncate(places)) {
		return fmt.Errorf("%w: quantity %s exceeds %d decimal places", model.ErrInvalidInput, quantity, places)
	}
	return nil
}
