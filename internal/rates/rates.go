package rates

import (
	"context"
	"errors"
	"fmt"

	"parking/internal/money"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownCurrency = errors.New("unknown currency")
	ErrIncompleteRates = errors.New("rate set is missing a supported currency")
)

// Source returns conversion rates quoted as units of each currency per one
// unit of base.
type Source interface {
	GetRates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

// StaticTable holds rates quoted per 1 MDL.
type StaticTable struct {
	perMDL map[string]decimal.Decimal
}

func DefaultTable() StaticTable {
	return StaticTable{perMDL: map[string]decimal.Decimal{
		money.MDL: decimal.NewFromInt(1),
		money.USD: decimal.RequireFromString("0.055"),
		money.EUR: decimal.RequireFromString("0.051"),
	}}
}

func NewStaticTable(perMDL map[string]decimal.Decimal) (StaticTable, error) {
	table := StaticTable{perMDL: make(map[string]decimal.Decimal, len(perMDL))}
	for code, rate := range perMDL {
		normalized, err := money.NormalizeCurrency(code)
		if err != nil {
			return StaticTable{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
		}
		if !rate.IsPositive() {
			return StaticTable{}, fmt.Errorf("rate for %s must be positive", normalized)
		}
		table.perMDL[normalized] = rate
	}
	if err := complete(table.perMDL); err != nil {
		return StaticTable{}, err
	}
	return table, nil
}

func (t StaticTable) GetRates(_ context.Context, base string) (map[string]decimal.Decimal, error) {
	baseRate, ok := t.perMDL[base]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCurrency, base)
	}
	out := make(map[string]decimal.Decimal, len(t.perMDL))
	for code, rate := range t.perMDL {
		out[code] = rate.DivRound(baseRate, 8)
	}
	return out, nil
}

type fallbackSource struct {
	primary  Source
	fallback Source
	logger   logrus.FieldLogger
}

// WithFallback serves the primary's rates and switches to fallback whenever
// the primary errors or returns an incomplete set.
func WithFallback(primary, fallback Source, logger logrus.FieldLogger) Source {
	if primary == nil {
		return fallback
	}
	return &fallbackSource{primary: primary, fallback: fallback, logger: logger}
}

func (s *fallbackSource) GetRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	got, err := s.primary.GetRates(ctx, base)
	if err == nil {
		err = complete(got)
	}
	if err == nil {
		return got, nil
	}
	s.logger.WithError(err).WithField("base", base).Warn("rate source unavailable, using fallback table")
	return s.fallback.GetRates(ctx, base)
}

// Convert turns an amount in minor units of from into minor units of to,
// using rates quoted against from. Rounds half to even.
func Convert(amountMinor int64, from, to string, quoted map[string]decimal.Decimal) (int64, error) {
	if from == to {
		return amountMinor, nil
	}
	rate, ok := quoted[to]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCurrency, to)
	}
	return decimal.NewFromInt(amountMinor).Mul(rate).RoundBank(0).IntPart(), nil
}

func complete(quoted map[string]decimal.Decimal) error {
	for _, code := range money.Currencies {
		if _, ok := quoted[code]; !ok {
			return fmt.Errorf("%w: %s", ErrIncompleteRates, code)
		}
	}
	return nil
}
