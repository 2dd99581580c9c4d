package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// minorUnitExp is the number of fractional digits in a rupee amount (paisa).
const minorUnitExp = 2

// ErrInvalidAmountFormat is returned when a decimal amount cannot be represented in minor units.
var ErrInvalidAmountFormat = errors.New("invalid amount format")

// Amount is a monetary amount in minor units (paisa). 1000 NPR is stored as 100000.
type Amount int64

// ParseAmount converts a rupee decimal string such as "1000" or "10.50" into minor units.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmountFormat, s)
	}
	return AmountFromDecimal(d)
}

// AmountFromDecimal converts a rupee decimal into minor units.
// Fractions below one paisa are rejected rather than rounded.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Shift(minorUnitExp)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmountFormat, d.String(), minorUnitExp)
	}
	if minor.GreaterThan(decimal.NewFromInt(1<<62)) || minor.LessThan(decimal.NewFromInt(-(1 << 62))) {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmountFormat, d.String())
	}
	return Amount(minor.IntPart()), nil
}

// Decimal returns the amount in rupees.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -minorUnitExp)
}

// String formats the amount the way eSewa expects it on forms: rupees, without trailing zeros.
func (a Amount) String() string {
	return a.Decimal().String()
}

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool {
	return a > 0
}
