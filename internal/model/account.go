package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID          string          `db:"id" json:"id"`
	CashBalance decimal.Decimal `db:"cash_balance" json:"cash_balance"`
	Version     int64           `db:"version" json:"-"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Position is an account's holding of one symbol. Stored rows always have Quantity > 0.
type Position struct {
	AccountID   string          `db:"account_id" json:"-"`
	Symbol      string          `db:"symbol" json:"symbol"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	AverageCost decimal.Decimal `db:"average_cost" json:"average_cost"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

func (p Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AverageCost)
}

func (p Position) ValueAt(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(price)
}
