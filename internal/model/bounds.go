package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	MinExponent      int32 = -18 // finest fractional digit accepted from callers
	MaxIntegerDigits int64 = 20  // digits left of the decimal point
)

// CheckBounds rejects prices, amounts and share counts whose scale would make
// decimal arithmetic on them arbitrarily expensive. The value itself is not
// echoed back since its textual form may be huge.
func CheckBounds(field string, d decimal.Decimal) error {
	exp := d.Exponent()
	if exp < MinExponent {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidInput, field, -MinExponent)
	}
	if int64(d.NumDigits())+int64(exp) > MaxIntegerDigits {
		return fmt.Errorf("%w: %s has more than %d integer digits", ErrInvalidInput, field, MaxIntegerDigits)
	}
	return nil
}
