package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "lower case ticker", in: "aapl", want: "AAPL"},
		{name: "class share with dot", in: "BRK.B", want: "BRK.B"},
		{name: "surrounding spaces", in: "  msft ", want: "MSFT"},
		{name: "empty", in: "", wantErr: true},
		{name: "leading dot", in: ".X", wantErr: true},
		{name: "sql injection", in: "AAPL'; DROP", wantErr: true},
		{name: "too long", in: "ABCDEFGHIJKLMNOPQRSTUVWXYZ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSymbol(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSide(t *testing.T) {
	side, err := ParseSide("BUY")
	assert.NoError(t, err)
	assert.Equal(t, Buy, side)

	side, err = ParseSide(" sell ")
	assert.NoError(t, err)
	assert.Equal(t, Sell, side)

	_, err = ParseSide("short")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAmountSpec(t *testing.T) {
	a := Notional(decimal.NewFromInt(250))
	assert.Equal(t, NotionalAmount, a.Kind())
	assert.True(t, a.Value().Equal(decimal.NewFromInt(250)))
	assert.Equal(t, "notional(250)", a.String())

	var zero AmountSpec
	assert.Equal(t, "unknown", zero.Kind().String())
}
