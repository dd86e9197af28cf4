package validators

import (
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// ParseMoneyCents converts a decimal amount such as "125.50" into integer cents.
// Amounts must be non-negative with at most two decimal places.
func ParseMoneyCents(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
	}
	if amount.IsNegative() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	cents := amount.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimals")
	}
	return cents.IntPart(), nil
}

// FormatCents renders integer cents as a fixed two-decimal string.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
