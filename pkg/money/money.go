// Package money holds minor-unit amount helpers shared by pricing, royalty
// and success-fee computation. Amounts are always int64 minor units; rates
// are exact decimals so no float ever touches a stored value.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRate    = errors.New("invalid_rate")
	ErrAmountOverflow = errors.New("amount_overflow")
)

// ApplyRate returns round_half_even(amount * rate) in whole minor units.
func ApplyRate(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).RoundBank(0).IntPart()
}

// ParseRate parses a non-negative decimal rate such as "0.20".
func ParseRate(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrInvalidRate
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidRate, raw)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidRate, raw)
	}
	return rate, nil
}

// MustRate is ParseRate for compile-time constants.
func MustRate(raw string) decimal.Decimal {
	rate, err := ParseRate(raw)
	if err != nil {
		panic(err)
	}
	return rate
}

// MulInt multiplies two minor-unit quantities and fails instead of wrapping.
func MulInt(amount, qty int64) (int64, error) {
	if amount == 0 || qty == 0 {
		return 0, nil
	}
	product := amount * qty
	if product/qty != amount {
		return 0, ErrAmountOverflow
	}
	return product, nil
}

// Format renders a minor-unit amount with two decimals, e.g. 1624 -> "16.24".
func Format(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
