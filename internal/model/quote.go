package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"as_of"`

	// Daily move against the previous close; nil when the provider does not report it.
	PreviousClose *decimal.Decimal `json:"previous_close,omitempty"`
	Change        *decimal.Decimal `json:"change,omitempty"`
	ChangePercent *decimal.Decimal `json:"change_percent,omitempty"`
}
