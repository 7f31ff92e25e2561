// Package units converts between human-readable token amounts and base units.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"usdc-bridge/pkg/types"
)

// ToBaseUnits converts a decimal amount string into an integer amount in the
// token's smallest denomination. Inputs that carry more precision than the
// token supports are rejected rather than rounded.
func ToBaseUnits(amount string, decimals int32) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("%w: amount is required", types.ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", types.ErrInvalidAmount, amount)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than 0", types.ErrInvalidAmount)
	}

	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s has more than %d decimal places", types.ErrInvalidAmount, amount, decimals)
	}

	return shifted.BigInt(), nil
}

// ToBaseUnitsString is ToBaseUnits rendered as a decimal integer string
func ToBaseUnitsString(amount string, decimals int32) (string, error) {
	v, err := ToBaseUnits(amount, decimals)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// FromBaseUnits renders a base-unit integer as a decimal string without trailing zeros
func FromBaseUnits(value *big.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -decimals).String()
}

// Format renders a base-unit value with a fixed number of fractional digits for display
func Format(value *big.Int, decimals int32, places int32) string {
	if value == nil {
		value = new(big.Int)
	}
	return decimal.NewFromBigInt(value, -decimals).StringFixed(places)
}

// FormatString is Format for base-unit strings; unparsable input is returned as-is
func FormatString(value string, decimals int32, places int32) string {
	v, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return value
	}
	return Format(v, decimals, places)
}

// Ratio returns num/den as a decimal string with the given precision, "0" when den is zero
func Ratio(num, den string, places int32) string {
	n, err := decimal.NewFromString(num)
	if err != nil {
		return "0"
	}
	d, err := decimal.NewFromString(den)
	if err != nil || d.IsZero() {
		return "0"
	}
	return n.DivRound(d, places).StringFixed(places)
}

// ShortfallPercent returns (from - to) / from * 100, "0" when from is zero or either side is unparsable
func ShortfallPercent(from, to string, places int32) string {
	f, err := decimal.NewFromString(from)
	if err != nil || f.IsZero() {
		return "0"
	}
	t, err := decimal.NewFromString(to)
	if err != nil {
		return "0"
	}
	return f.Sub(t).Div(f).Mul(decimal.NewFromInt(100)).StringFixed(places)
}
