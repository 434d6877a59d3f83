// Package marketdata fetches ranked token data and prices from a pricing
// provider and live pair status from an exchange.
package marketdata

import (
	"context"
	"strings"
	"time"

	"crypto-index-lab/internal/domain"
)

// PriceSource is the pricing-provider boundary.
type PriceSource interface {
	// ListRankedTokens returns one page of tokens ordered by market cap, descending.
	// Categories are not populated by this call.
	ListRankedTokens(ctx context.Context, page, perPage int) ([]domain.Token, error)

	// GetCategories returns provider categories of a token.
	GetCategories(ctx context.Context, id string) ([]string, error)

	// GetLivePrice returns the current USD price.
	GetLivePrice(ctx context.Context, id string) (float64, error)

	// GetHistoricPrice returns the USD price on the UTC day of at.
	GetHistoricPrice(ctx context.Context, id string, at time.Time) (float64, error)
}

// Exchange is the reference-exchange boundary.
type Exchange interface {
	// ListTradablePairs returns every listed pair with its live status.
	ListTradablePairs(ctx context.Context) ([]domain.TradingPair, error)

	// FirstTradingTime returns the open time of the earliest kline of a pair.
	FirstTradingTime(ctx context.Context, symbol string) (time.Time, error)
}

// TradableBaseSymbols derives the set of upper-case base assets with at least one
// TRADING pair. When quoteAssets is non-empty only pairs quoted in one of them count.
func TradableBaseSymbols(pairs []domain.TradingPair, quoteAssets []string) map[string]struct{} {
	quotes := make(map[string]struct{}, len(quoteAssets))
	for _, q := range quoteAssets {
		quotes[strings.ToUpper(q)] = struct{}{}
	}

	out := make(map[string]struct{})
	for _, p := range pairs {
		if !p.IsTrading() {
			continue
		}
		if len(quotes) > 0 {
			if _, ok := quotes[strings.ToUpper(p.QuoteAsset)]; !ok {
				continue
			}
		}
		out[strings.ToUpper(p.BaseAsset)] = struct{}{}
	}
	return out
}
