package models

import (
	"math"

	"github.com/shopspring/decimal"
)

// ZenniesPerToken is the fixed conversion between display tokens and ledger units
const ZenniesPerToken = 100

var maxZennies = decimal.NewFromInt(math.MaxInt64)

// ParseTokens converts a token amount into zennies.
// Zero, negative, sub-cent and out-of-range amounts are rejected with ErrInvalidAmount.
func ParseTokens(tokens decimal.Decimal) (int64, error) {
	zennies := tokens.Shift(2)
	if !zennies.IsInteger() || zennies.Sign() <= 0 || zennies.GreaterThan(maxZennies) {
		return 0, ErrInvalidAmount
	}
	return zennies.IntPart(), nil
}

// ParseTokenString is ParseTokens for raw user input
func ParseTokenString(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return ParseTokens(d)
}

// ZenniesToTokens returns the exact token value of a zenny amount
func ZenniesToTokens(zennies int64) decimal.Decimal {
	return decimal.New(zennies, -2)
}

// FormatTokens renders zennies as tokens with two decimals, e.g. 7000 -> "70.00"
func FormatTokens(zennies int64) string {
	return ZenniesToTokens(zennies).StringFixed(2)
}
