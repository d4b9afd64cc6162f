package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	default:
		return "", fmt.Errorf("%w: unknown side %q", ErrInvalidInput, s)
	}
}

var _symbolRe = regexp.MustCompile(`^[A-Z0-9][A-Z0-9._-]{0,19}$`)

// NormalizeSymbol upper-cases a ticker and checks it against the accepted alphabet.
func NormalizeSymbol(s string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(s))
	if !_symbolRe.MatchString(symbol) {
		return "", fmt.Errorf("%w: malformed symbol %q", ErrInvalidInput, s)
	}
	return symbol, nil
}

type AmountKind int

const (
	SharesAmount AmountKind = iota + 1
	NotionalAmount
)

func (k AmountKind) String() string {
	switch k {
	case SharesAmount:
		return "shares"
	case NotionalAmount:
		return "notional"
	default:
		return "unknown"
	}
}

// AmountSpec sizes a trade either by share count or by cash amount.
// The zero value is invalid.
type AmountSpec struct {
	kind  AmountKind
	value decimal.Decimal
}

func Shares(quantity decimal.Decimal) AmountSpec {
	return AmountSpec{kind: SharesAmount, value: quantity}
}

func Notional(amount decimal.Decimal) AmountSpec {
	return AmountSpec{kind: NotionalAmount, value: amount}
}

func (a AmountSpec) Kind() AmountKind       { return a.kind }
func (a AmountSpec) Value() decimal.Decimal { return a.value }

func (a AmountSpec) String() string {
	return a.kind.String() + "(" + a.value.String() + ")"
}

type TradeRequest struct {
	AccountID string
	Symbol    string
	Side      Side
	Amount    AmountSpec
	PriceHint *decimal.Decimal
}

type TradeResult struct {
	TradeID     uuid.UUID        `json:"trade_id"`
	AccountID   string           `json:"-"`
	Symbol      string           `json:"symbol"`
	Side        Side             `json:"side"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Price       decimal.Decimal  `json:"price"`
	Amount      decimal.Decimal  `json:"amount"` // cost for buys, proceeds for sells
	CashBalance decimal.Decimal  `json:"cash_balance"`
	Position    *Position        `json:"position"` // nil when the position was closed
	RealizedPnL *decimal.Decimal `json:"realized_pnl,omitempty"`
	ExecutedAt  time.Time        `json:"executed_at"`
}
