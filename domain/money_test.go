package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"59.99", 5999},
		{"71.99", 7199},
		{"12", 1200},
		{"0.005", 1},
		{"0.004", 0},
		{"19.995", 2000},
		{"0.1", 10},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ToMinorUnits(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestToMinorUnits_FloatInput(t *testing.T) {
	// 0.1+0.2 style drift must not leak into the charged amount
	assert.Equal(t, int64(5999), ToMinorUnits(decimal.NewFromFloat(59.99)))
	assert.Equal(t, int64(30), ToMinorUnits(decimal.NewFromFloat(0.1+0.2)))
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "£59.99", FormatMinor(5999, "gbp"))
	assert.Equal(t, "€0.50", FormatMinor(50, "EUR"))
	assert.Equal(t, "CHF 10.00", FormatMinor(1000, "chf"))
}

func TestQuoteTotals(t *testing.T) {
	small := QuoteTotals(5999)
	assert.Equal(t, StandardShipping, small.Shipping)
	assert.Equal(t, int64(1200), small.Tax)
	assert.Equal(t, int64(5999+999+1200), small.Total)
	assert.True(t, small.Consistent())

	// exactly £75 still pays shipping
	edge := QuoteTotals(7500)
	assert.Equal(t, StandardShipping, edge.Shipping)

	big := QuoteTotals(7501)
	assert.Zero(t, big.Shipping)
	assert.Equal(t, int64(1500), big.Tax)
	assert.True(t, big.Consistent())
}
