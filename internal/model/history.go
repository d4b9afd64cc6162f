package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValueHistoryRecord is an append-only valuation of an account at Timestamp.
// FailedSymbols lists positions that were valued at zero because no quote was available.
type ValueHistoryRecord struct {
	ID               uuid.UUID       `json:"id"`
	AccountID        string          `json:"-"`
	Timestamp        time.Time       `json:"timestamp"`
	CashBalance      decimal.Decimal `json:"cash_balance"`
	InvestmentsValue decimal.Decimal `json:"investments_value"`
	TotalValue       decimal.Decimal `json:"total_value"`
	FailedSymbols    []string        `json:"failed_symbols,omitempty"`
}
