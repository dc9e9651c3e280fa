package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a currency-tagged decimal amount.
// JSON decoding accepts both numeric (12.5) and string ("12.50") amounts, which
// is how the commerce API and the cart proxy disagree on the wire.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

// NewMoney builds a Money from a decimal string. Empty strings are zero.
func NewMoney(amount, currencyCode string) (Money, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return Money{Amount: decimal.Zero, CurrencyCode: currencyCode}, nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	return Money{Amount: d, CurrencyCode: currencyCode}, nil
}

// ParseAmount converts a decimal string to a decimal value.
// Invalid or empty input yields zero, matching best-effort upstream parsing.
// Examples: "99.00" → 99, "1234.5" → 1234.5, "" → 0, "abc" → 0
func ParseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Round2 rounds to two decimal places, half away from zero.
// For the non-negative amounts carts deal with this is standard half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Times returns the amount multiplied by quantity, rounded to cents.
func (m Money) Times(quantity int) Money {
	return Money{
		Amount:       Round2(m.Amount.Mul(decimal.NewFromInt(int64(quantity)))),
		CurrencyCode: m.CurrencyCode,
	}
}

// Equal reports whether both amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.CurrencyCode == other.CurrencyCode && m.Amount.Equal(other.Amount)
}

// String formats the amount with two decimals followed by the currency code.
func (m Money) String() string {
	if m.CurrencyCode == "" {
		return m.Amount.StringFixed(2)
	}
	return m.Amount.StringFixed(2) + " " + m.CurrencyCode
}
