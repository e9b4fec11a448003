package domain

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// CurrencyCode is an ISO-4217 three-letter, upper-ASCII currency code.
type CurrencyCode string

// ValidateCurrencyCode enforces the currency invariant: exactly three
// uppercase ASCII letters. This never truncates or normalizes a bad
// value — overflow and malformed input are validation failures.
func ValidateCurrencyCode(code CurrencyCode) error {
	s := string(code)
	if len(s) != 3 {
		return NewValidationError("currency", "currency code must be exactly 3 characters")
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsUpper(r) || !unicode.IsLetter(r) {
			return NewValidationError("currency", "currency code must be 3 uppercase ASCII letters")
		}
	}
	return nil
}

// BoundedString validates that s does not exceed maxLen runes. Overflow is
// always a validation failure; this package never truncates a caller's
// input on their behalf.
func BoundedString(field, s string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(s)
	if len([]rune(trimmed)) > maxLen {
		return "", NewValidationError(field, "exceeds maximum length")
	}
	return trimmed, nil
}

// RequireBoundedString is like BoundedString but additionally rejects an
// empty value after trimming.
func RequireBoundedString(field, s string, maxLen int) (string, error) {
	trimmed, err := BoundedString(field, s, maxLen)
	if err != nil {
		return "", err
	}
	if trimmed == "" {
		return "", NewValidationError(field, "must not be empty")
	}
	return trimmed, nil
}

// RequirePositive rejects a non-positive monetary amount. No monetary
// quantity on the posting or hold-placement path is ever a float64; all
// arithmetic here is on shopspring/decimal values.
func RequirePositive(field string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return NewValidationError(field, "must be greater than zero")
	}
	return nil
}

// RequireNonNegative rejects a negative monetary amount.
func RequireNonNegative(field string, amount decimal.Decimal) error {
	if amount.LessThan(decimal.Zero) {
		return NewValidationError(field, "must not be negative")
	}
	return nil
}

// MoneyScale is the minimum number of fractional digits the core persists
// and displays monetary values at: fixed-point decimals with at least 4
// fractional digits.
const MoneyScale = 4

// NormalizeAmount rounds a decimal to the canonical money scale, rounding
// half away from zero.
func NormalizeAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MoneyScale)
}
