package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit price (59.99) to minor units (5999),
// rounding half up. Every price conversion goes through here.
func ToMinorUnits(major decimal.Decimal) int64 {
	return major.Mul(hundred).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// FormatMinor renders an amount for logs and messages, e.g. "£59.99".
func FormatMinor(minor int64, currency string) string {
	sym := strings.ToUpper(currency) + " "
	switch strings.ToLower(currency) {
	case "gbp":
		sym = "£"
	case "eur":
		sym = "€"
	case "usd":
		sym = "$"
	}
	return fmt.Sprintf("%s%s", sym, FromMinorUnits(minor).StringFixed(2))
}

const (
	FreeShippingThreshold int64 = 7500
	StandardShipping      int64 = 999
	VATPercent            int64 = 20
)

// QuoteTotals prices a subtotal the way the storefront summary shows it:
// free shipping over £75, 20% VAT.
func QuoteTotals(subtotal int64) Totals {
	shipping := StandardShipping
	if subtotal > FreeShippingThreshold {
		shipping = 0
	}
	tax := decimal.NewFromInt(subtotal).Mul(decimal.NewFromInt(VATPercent)).Div(hundred).Round(0).IntPart()
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal + shipping + tax,
	}
}
