package model

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCheckBounds(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "plain price", in: "187.25"},
		{name: "zero", in: "0"},
		{name: "smallest fraction", in: "0.000000000000000001"},
		{name: "twenty integer digits", in: "99999999999999999999"},
		{name: "negative within range", in: "-12.5"},
		{name: "too many decimal places", in: "0.0000000000000000001", wantErr: true},
		{name: "twenty one integer digits", in: "100000000000000000000", wantErr: true},
		{name: "huge positive exponent", in: "1e5000000", wantErr: true},
		{name: "huge negative exponent", in: "1e-5000000", wantErr: true},
		{name: "zero with huge exponent", in: "0e-5000000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			err := CheckBounds("price", decimal.RequireFromString(tt.in))
			assert.Less(t, time.Since(start), 100*time.Millisecond)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				assert.Less(t, len(err.Error()), 100)
				assert.True(t, strings.Contains(err.Error(), "price"))
				return
			}
			assert.NoError(t, err)
		})
	}
}
