// Package types provides common type aliases and utilities.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// Quantity is an inventory quantity in the item's base unit.
// Fractional quantities are allowed (kg, litres), so it shares Money's representation.
type Quantity = decimal.Decimal

// DefaultCostScale is the number of fractional digits kept on derived unit costs.
// Accumulated totals are never rounded; only the final division is.
const DefaultCostScale int32 = 6

// MoneyScale is the number of fractional digits for extended amounts (qty * cost).
const MoneyScale int32 = 2

// RoundCost rounds a unit cost to scale digits, half away from zero.
func RoundCost(d decimal.Decimal, scale int32) decimal.Decimal {
	if scale < 0 {
		scale = DefaultCostScale
	}
	return d.Round(scale)
}

// DivCost divides value by quantity and rounds the quotient to scale digits.
// The caller must ensure qty is non-zero.
func DivCost(value Money, qty Quantity, scale int32) Money {
	if scale < 0 {
		scale = DefaultCostScale
	}
	return value.DivRound(qty, scale)
}

// ParseMoney creates a Money value from a string.
// This is the preferred method for monetary values.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse money %q: %w", s, err)
	}
	return d, nil
}

// ParseQuantity creates a Quantity value from a string.
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	return d, nil
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// MustQuantity is MustMoney for quantities.
func MustQuantity(s string) Quantity {
	return MustMoney(s)
}

// Zero returns zero value.
func Zero() decimal.Decimal {
	return decimal.Zero
}
