package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/retry"
)

// DefaultBinanceURL is the public Binance spot API.
const DefaultBinanceURL = "https://api.binance.com"

// KlineIntervals is the first-listing lookup order, finest first.
var KlineIntervals = []string{"1h", "1d", "1w"}

// ErrNoKlines is returned when an interval has no trading history for a symbol.
var ErrNoKlines = errors.New("no klines")

// Binance implements Exchange against the Binance spot REST API.
type Binance struct {
	rest      *restClient
	intervals []string
}

// NewBinance creates a Binance client. Empty baseURL uses DefaultBinanceURL.
func NewBinance(baseURL string, opts ...Option) *Binance {
	if baseURL == "" {
		baseURL = DefaultBinanceURL
	}
	return &Binance{
		rest:      newRESTClient("binance", strings.TrimRight(baseURL, "/"), opts...),
		intervals: KlineIntervals,
	}
}

var _ Exchange = (*Binance)(nil)

type exchangeInfo struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

// ListTradablePairs returns every listed pair with its live status.
func (b *Binance) ListTradablePairs(ctx context.Context) ([]domain.TradingPair, error) {
	var info exchangeInfo
	if err := b.rest.getJSON(ctx, "/api/v3/exchangeInfo", "/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, err
	}

	pairs := make([]domain.TradingPair, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		pairs = append(pairs, domain.TradingPair{
			Symbol:     s.Symbol,
			BaseAsset:  strings.ToUpper(s.BaseAsset),
			QuoteAsset: strings.ToUpper(s.QuoteAsset),
			Status:     s.Status,
		})
	}
	return pairs, nil
}

// FirstTradingTime locates the first kline of symbol. Each interval is tried with
// the client's bounded retry policy; an interval with no data or persistent
// failures falls through to the next, coarser one.
func (b *Binance) FirstTradingTime(ctx context.Context, symbol string) (time.Time, error) {
	openMs, _, err := retry.Downgrade(ctx, b.intervals, retry.Policy{Attempts: 1},
		func(ctx context.Context, interval string) (int64, error) {
			return b.firstKlineOpen(ctx, symbol, interval)
		})
	if err != nil {
		return time.Time{}, fmt.Errorf("first trading time %s: %w", symbol, err)
	}
	return time.UnixMilli(openMs).UTC(), nil
}

// firstKlineOpen returns the open time (ms) of the earliest kline at interval.
func (b *Binance) firstKlineOpen(ctx context.Context, symbol, interval string) (int64, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("interval", interval)
	params.Set("startTime", "0")
	params.Set("limit", "1")

	var klines [][]json.RawMessage
	if err := b.rest.getJSON(ctx, "/api/v3/klines", "/api/v3/klines", params, &klines); err != nil {
		return 0, err
	}
	if len(klines) == 0 || len(klines[0]) == 0 {
		return 0, retry.Permanent(fmt.Errorf("%w: %s %s", ErrNoKlines, symbol, interval))
	}

	var openMs int64
	if err := json.Unmarshal(klines[0][0], &openMs); err != nil {
		return 0, retry.Permanent(fmt.Errorf("%w: kline open time: %v", domain.ErrDataFetch, err))
	}
	return openMs, nil
}
