// Package quote resolves the current market price of a symbol.
package quote

import (
	"context"

	"github.com/STTM-NSU/paper-trading/internal/model"
)

// Source returns the latest known price of a symbol.
// Implementations wrap model.ErrQuoteUnavailable when the provider has no usable price.
type Source interface {
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
}

type SourceFunc func(ctx context.Context, symbol string) (model.Quote, error)

func (f SourceFunc) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	return f(ctx, symbol)
}
