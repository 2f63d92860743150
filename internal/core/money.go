// Package core provides money parsing and handling utilities.
//
// This file contains the Money type used for every balance and amount in the
// ledger. Values are held as integer minor units so that balance deltas can be
// applied with a plain integer add at the storage layer; decimal arithmetic is
// only used at the edges (parsing, percentages, rendering).
package core

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Bounds on ledger values. A single amount is at most MaxAmount in magnitude
// and a balance at most MaxBalance, so a balance plus a delta stays far inside
// int64 and Add/Sub on bounded values cannot overflow.
var (
	MaxAmount  = Money{Cents: 1_000_000_000_000_000}   // 10 trillion units
	MaxBalance = Money{Cents: 100_000_000_000_000_000} // 1 quadrillion units
)

var maxAmountCents = decimal.NewFromInt(MaxAmount.Cents)

// Money is an amount in minor units (cents). It may be negative: balances and
// debt remainders can drop below zero, ledger amounts never do.
type Money struct {
	Cents int64
}

// NewMoney builds Money from whole units and cents, e.g. NewMoney(12, 34) is 12.34.
func NewMoney(units, cents int64) Money {
	return Money{Cents: units*100 + cents}
}

// MoneyFromDecimal rounds d half away from zero to two places. Values beyond
// MaxAmount in magnitude are rejected with ErrAmountOutOfRange.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Round(2).Shift(2)
	if cents.Abs().GreaterThan(maxAmountCents) {
		return Money{}, fmt.Errorf("%w: %s exceeds %s", ErrAmountOutOfRange, d.String(), MaxAmount)
	}
	return Money{Cents: cents.IntPart()}, nil
}

// ParseMoney parses a decimal string such as "12.34" or "12,34".
//
// Both dot and comma separators are accepted. More than two fraction digits are
// rounded half-up. Unlike ParseDecimalToCents, zero and negative values are
// returned as-is; callers decide whether a sign is acceptable.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return MoneyFromDecimal(d)
}

// ParseDecimalToCents converts a strictly positive decimal string to cents.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,345") -> 1235, nil (half-up)
//	ParseDecimalToCents("0") -> 0, ErrInvalidAmount
func ParseDecimalToCents(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "+") || strings.HasPrefix(trimmed, "-") {
		return 0, ErrInvalidAmount
	}
	m, err := ParseMoney(trimmed)
	if err != nil {
		return 0, err
	}
	if m.Cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return m.Cents, nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// InRange reports whether m is a valid single amount.
func (m Money) InRange() bool {
	return m.Cents >= -MaxAmount.Cents && m.Cents <= MaxAmount.Cents
}

// WithinBalanceLimit reports whether m is a valid account balance.
func (m Money) WithinBalanceLimit() bool {
	return m.Cents >= -MaxBalance.Cents && m.Cents <= MaxBalance.Cents
}

// Add returns m + o. Operands are bounded by MaxBalance and MaxAmount, which
// keeps the sum representable.
func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// Neg returns -m.
func (m Money) Neg() Money { return Money{Cents: -m.Cents} }

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }

// Percent returns m * rate / 100 rounded to cents.
func (m Money) Percent(rate decimal.Decimal) (Money, error) {
	return MoneyFromDecimal(m.Decimal().Mul(rate).Div(hundred))
}

// Max returns the larger of m and o.
func (m Money) Max(o Money) Money {
	if m.Cents >= o.Cents {
		return m
	}
	return o
}

// String formats the amount with two fraction digits.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON renders the amount as a JSON number, e.g. 1100.00.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = Money{}
		return nil
	}
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
