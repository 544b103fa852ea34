// Package core provides money parsing and handling utilities.
//
// Amounts are exact decimals backed by shopspring/decimal, so a sum of 0.1 is
// stored and compared as exactly 0.1 on every backend.
package core

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Money is an exact decimal amount.
type Money struct {
	Amount decimal.Decimal
}

// ParseMoney converts a decimal string to Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Sign
// checks are left to the caller so that a negative sum can be reported as a
// field-level problem rather than a parse failure.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return Money{Amount: d}, nil
}

// MustParseMoney is ParseMoney for constants and tests.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

// Equal compares amounts numerically, so 12.5 equals 12.50.
func (m Money) Equal(o Money) bool {
	return m.Amount.Equal(o.Amount)
}

func (m Money) String() string {
	return m.Amount.String()
}

// MarshalJSON renders the amount as a quoted decimal string.
func (m Money) MarshalJSON() ([]byte, error) {
	return m.Amount.MarshalJSON()
}

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings, with
// the same rules as ParseMoney. null leaves m unchanged.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(data, &raw); err != nil {
			return ErrInvalidAmount
		}
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
