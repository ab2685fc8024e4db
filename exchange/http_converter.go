package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"go-bank-transfers/common"
	"go-bank-transfers/logger"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ratesResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// HTTPConverter fetches the rate for each conversion from a rates API
// answering GET /latest?base=X&symbols=Y with {"rates":{"Y":"1.1"}}.
type HTTPConverter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPConverter(baseURL string, client *http.Client) *HTTPConverter {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPConverter{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (c *HTTPConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return amount, nil
	}

	q := url.Values{}
	q.Set("base", from)
	q.Set("symbols", to)
	endpoint := c.baseURL + "/latest?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", common.ErrCurrencyExchange, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"from": from, "to": to}).WithError(err).Warn("Exchange rate request failed")
		return decimal.Zero, fmt.Errorf("%w: %v", common.ErrCurrencyExchange, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: rates API returned %d", common.ErrCurrencyExchange, resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode rates: %v", common.ErrCurrencyExchange, err)
	}

	rate, ok := body.Rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", ErrUnsupportedCurrency, to)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: invalid rate %s for %s", common.ErrCurrencyExchange, rate, to)
	}

	return amount.Mul(rate).Round(Scale), nil
}

var _ Converter = (*HTTPConverter)(nil)
