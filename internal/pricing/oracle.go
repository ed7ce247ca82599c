// Package pricing provides market price lookup for the engine: a PriceOracle
// interface over live quote sources, and a Resolver that layers the oracle
// over cached and default prices so a price lookup never fails.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Oracle returns the current price for a ticker. Implementations may block
// on network I/O and may fail; callers are expected to apply timeouts and
// fall back rather than stall.
type Oracle interface {
	GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// HTTPOracle fetches quotes from a JSON endpoint:
// GET {base}/quote?ticker=X → {"ticker": "X", "price": "123.45"}.
type HTTPOracle struct {
	base   string
	client *http.Client
}

// NewHTTPOracle creates an oracle against the given base URL. The client
// timeout bounds every lookup so a slow quote source cannot stall the
// engine's mutation lock.
func NewHTTPOracle(base string, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{
		base: base,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetPrice fetches the live price for ticker.
func (o *HTTPOracle) GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	u := fmt.Sprintf("%s/quote?ticker=%s", o.base, url.QueryEscape(ticker))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("quote fetch %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("quote fetch %s: status %d", ticker, resp.StatusCode)
	}

	var body struct {
		Ticker string          `json:"ticker"`
		Price  decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("quote decode %s: %w", ticker, err)
	}
	if body.Price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("quote fetch %s: non-positive price %s", ticker, body.Price)
	}

	return body.Price, nil
}
