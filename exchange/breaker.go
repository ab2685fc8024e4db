package exchange

import (
	"context"
	"errors"
	"fmt"
	"go-bank-transfers/common"
	"go-bank-transfers/logger"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerConverter bounds every call to next with a timeout and stops
// calling it while the breaker is open. Only transport failures and timeouts
// count toward tripping it; unsupported currencies and calls abandoned by the
// caller do not.
type BreakerConverter struct {
	next    Converter
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
}

var errCallerGone = errors.New("caller context done")

type BreakerSettings struct {
	Timeout             time.Duration
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Timeout:             3 * time.Second,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

func NewBreakerConverter(next Converter, s BreakerSettings) *BreakerConverter {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = DefaultBreakerSettings().ConsecutiveFailures
	}

	settings := gobreaker.Settings{
		Name:        "currency-exchange",
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrUnsupportedCurrency) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, errCallerGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &BreakerConverter{
		next:    next,
		timeout: s.Timeout,
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *BreakerConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	result, err := c.cb.Execute(func() (interface{}, error) {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		out, err := c.next.Convert(callCtx, amount, from, to)
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerGone, ctx.Err())
		}
		return out, err
	})
	if err != nil {
		if errors.Is(err, errCallerGone) {
			return decimal.Zero, ctx.Err()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return decimal.Zero, fmt.Errorf("%w: exchange unavailable: %v", common.ErrCurrencyExchange, err)
		}
		if !errors.Is(err, common.ErrCurrencyExchange) {
			err = fmt.Errorf("%w: %v", common.ErrCurrencyExchange, err)
		}
		return decimal.Zero, err
	}

	return result.(decimal.Decimal), nil
}

var _ Converter = (*BreakerConverter)(nil)
