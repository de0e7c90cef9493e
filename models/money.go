package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the number of fractional digits stored for every amount
const CurrencyPlaces = 2

// InterestPlaces is the precision of the accrued interest bucket
const InterestPlaces = 8

var (
	// ErrAmountNotNumeric is returned when an amount cannot be parsed
	ErrAmountNotNumeric = errors.New("amount is not a number")
	// ErrAmountNotPositive is returned for zero or negative amounts
	ErrAmountNotPositive = errors.New("amount must be positive")
	// ErrAmountTooPrecise is returned when an amount has sub-cent digits
	ErrAmountTooPrecise = errors.New("amount has more than two decimal places")
)

// ParseAmount is the single boundary where user supplied currency text becomes
// a decimal. It accepts plain decimal notation only, rejects values <= 0 and
// values with more than CurrencyPlaces fractional digits.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrAmountNotNumeric
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrAmountNotNumeric, raw)
	}

	return CheckAmount(amount)
}

// CheckAmount validates an already typed amount with the same rules as ParseAmount
func CheckAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrAmountNotPositive
	}
	if !amount.Equal(amount.Truncate(CurrencyPlaces)) {
		return decimal.Zero, ErrAmountTooPrecise
	}
	return amount, nil
}

// ParseNumeric converts a NUMERIC column that was selected as text
func ParseNumeric(column, text string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid numeric value %q in %s: %w", text, column, err)
	}
	return d, nil
}

// FormatAmount renders a currency amount with exactly CurrencyPlaces digits
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(CurrencyPlaces)
}
