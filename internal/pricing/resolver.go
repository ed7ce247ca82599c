package pricing

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/model"
)

// Source identifies which layer of the fallback chain served a price.
type Source string

const (
	SourceLive    Source = "live"
	SourceCache   Source = "cache"
	SourceDefault Source = "default"
)

// QuoteCache is the slice of the ledger store the resolver reads cached
// prices from.
type QuoteCache interface {
	LatestQuote(ctx context.Context, ticker string) (*model.Quote, error)
}

// defaultPrices covers tickers with neither a live quote nor cache history.
var defaultPrices = map[string]decimal.Decimal{
	"SPY":  decimal.NewFromInt(400),
	"QQQ":  decimal.NewFromInt(350),
	"AAPL": decimal.NewFromInt(175),
	"MSFT": decimal.NewFromInt(350),
	"TSLA": decimal.NewFromInt(250),
	"NVDA": decimal.NewFromInt(450),
	"AMZN": decimal.NewFromInt(140),
	"GOOG": decimal.NewFromInt(140),
}

// fallbackPrice is used when a ticker is missing from defaultPrices too.
var fallbackPrice = decimal.NewFromInt(100)

// Resolver resolves a current price via live oracle → cached quote →
// static defaults. Resolve never fails: a price source outage degrades
// price freshness, never trade availability.
type Resolver struct {
	oracle  Oracle
	cache   QuoteCache
	timeout time.Duration
}

// NewResolver creates a resolver. oracle and cache may be nil, in which
// case those layers are skipped.
func NewResolver(oracle Oracle, cache QuoteCache, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Resolver{oracle: oracle, cache: cache, timeout: timeout}
}

// Resolve returns the best available price for ticker and the source that
// served it.
func (r *Resolver) Resolve(ctx context.Context, ticker string) (decimal.Decimal, Source) {
	if r.oracle != nil {
		octx, cancel := context.WithTimeout(ctx, r.timeout)
		price, err := r.oracle.GetPrice(octx, ticker)
		cancel()
		if err == nil && price.IsPositive() {
			return price, SourceLive
		}
		if err != nil {
			slog.Warn("live price unavailable, falling back", "ticker", ticker, "err", err)
		}
	}

	if r.cache != nil {
		if q, err := r.cache.LatestQuote(ctx, ticker); err == nil && q != nil && q.Price.IsPositive() {
			return q.Price, SourceCache
		}
	}

	if p, ok := defaultPrices[ticker]; ok {
		return p, SourceDefault
	}
	return fallbackPrice, SourceDefault
}
