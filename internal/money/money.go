package money

import (
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrTooManyDecimals     = errors.New("amount has too many decimal places")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

const (
	MDL = "MDL"
	USD = "USD"
	EUR = "EUR"
)

// Currencies lists every currency a balance may be held in, MDL first.
var Currencies = []string{MDL, USD, EUR}

// NormalizeCurrency upper-cases a currency code and rejects unknown ones.
func NormalizeCurrency(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	for _, known := range Currencies {
		if normalized == known {
			return normalized, nil
		}
	}
	return "", ErrUnsupportedCurrency
}

// amountPattern captures sign, whole and fractional digits of a decimal
// amount. Exponents are not accepted.
var amountPattern = regexp.MustCompile(`^([+-]?)([0-9]*)(?:\.([0-9]*))?$`)

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// ParseMinor reads a decimal amount such as "12.5" into minor units (1250).
func ParseMinor(input string) (int64, error) {
	parts := amountPattern.FindStringSubmatch(strings.TrimSpace(input))
	if parts == nil || parts[2]+parts[3] == "" {
		return 0, ErrInvalidAmount
	}
	if len(parts[3]) > 2 {
		return 0, ErrTooManyDecimals
	}
	whole := parts[2]
	if whole == "" {
		whole = "0"
	}
	frac := parts[3]
	if frac == "" {
		frac = "0"
	}
	amount, err := decimal.NewFromString(parts[1] + whole + "." + frac)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	minor := amount.Shift(2)
	if minor.Abs().GreaterThan(maxMinor) {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// FormatMinor renders minor units with exactly two decimals.
func FormatMinor(value int64) string {
	return decimal.New(value, -2).StringFixed(2)
}
