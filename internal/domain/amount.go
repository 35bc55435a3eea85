/**
 * @description
 * This file defines the Amount type used for every monetary value in the
 * wallet-service. Values are held as int64 paise (minor units) internally so
 * that arithmetic is exact, while the wire representation stays a plain JSON
 * number with at most two fractional digits.
 *
 * @notes
 * - Parsing is strict: more than two fractional digits, exponent notation,
 *   and negative values are rejected before any business rule runs.
 */

package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a monetary value in paise (minor currency units).
type Amount int64

var (
	ErrAmountMalformed = errors.New("amount must be a number with at most 2 decimal places")
	ErrAmountNegative  = errors.New("amount must not be negative")
)

// ParseAmount converts a decimal string (e.g. "100", "99.5", "0.01") into
// paise. It rejects exponent notation, signs, and fractions finer than two
// digits rather than rounding them.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "eE+-") {
		return 0, ErrAmountMalformed
	}

	whole, frac := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole, frac = s[:idx], s[idx+1:]
		if len(frac) == 0 || len(frac) > 2 {
			return 0, ErrAmountMalformed
		}
	}
	if whole == "" {
		return 0, ErrAmountMalformed
	}

	for len(frac) < 2 {
		frac += "0"
	}

	minor, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, ErrAmountMalformed
	}
	return Amount(minor), nil
}

// String renders the amount in major units with minimal fractional digits.
func (a Amount) String() string {
	minor := int64(a)
	neg := minor < 0
	if neg {
		minor = -minor
	}
	whole, frac := minor/100, minor%100
	var out string
	if frac == 0 {
		out = strconv.FormatInt(whole, 10)
	} else {
		out = strings.TrimSuffix(fmt.Sprintf("%d.%02d", whole, frac), "0")
	}
	if neg {
		out = "-" + out
	}
	return out
}

// Major returns the amount in major currency units. Informational use only
// (e.g. the advisory average); never feed the result back into arithmetic.
func (a Amount) Major() float64 {
	return float64(a) / 100
}

// MarshalJSON emits the amount as a JSON number in major units. Formatting
// goes through integer math so the output is exact.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number with at most two fractional digits.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if strings.HasPrefix(s, `"`) {
		return ErrAmountMalformed
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
