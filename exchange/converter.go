// Package exchange converts amounts between currencies.
package exchange

import (
	"context"
	"fmt"
	"go-bank-transfers/common"
	"strings"

	"github.com/shopspring/decimal"
)

// Converter converts amount from one currency to another. Any failure is
// reported as a wrapped common.ErrCurrencyExchange.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// ErrUnsupportedCurrency is returned when no rate is known for a currency.
// It does not count against the circuit breaker.
var ErrUnsupportedCurrency = fmt.Errorf("%w: unsupported currency", common.ErrCurrencyExchange)

// Scale of converted amounts.
const Scale = 2

// StaticConverter converts with a fixed table of rates relative to a base
// currency (1 base = rate units of the currency).
type StaticConverter struct {
	base  string
	rates map[string]decimal.Decimal
}

// NewStaticConverter parses rates. Currency codes are matched case-insensitively.
func NewStaticConverter(base string, rates map[string]string) (*StaticConverter, error) {
	base = strings.ToUpper(base)
	parsed := map[string]decimal.Decimal{base: decimal.NewFromInt(1)}

	for code, raw := range rates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %w", code, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive", code)
		}
		parsed[strings.ToUpper(code)] = rate
	}

	return &StaticConverter{base: base, rates: parsed}, nil
}

func (c *StaticConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return amount, nil
	}

	fromRate, ok := c.rates[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", ErrUnsupportedCurrency, from)
	}
	toRate, ok := c.rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", ErrUnsupportedCurrency, to)
	}

	return amount.Mul(toRate).Div(fromRate).Round(Scale), nil
}

var _ Converter = (*StaticConverter)(nil)
