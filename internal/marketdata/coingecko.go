package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-index-lab/internal/domain"
)

// DefaultCoinGeckoURL is the public CoinGecko v3 API.
const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// CoinGeckoAPIKeyHeader is the header carrying a demo/pro API key.
const CoinGeckoAPIKeyHeader = "x-cg-demo-api-key"

// CoinGecko implements PriceSource against the CoinGecko REST API.
type CoinGecko struct {
	rest *restClient
}

// NewCoinGecko creates a CoinGecko client. Empty baseURL uses DefaultCoinGeckoURL.
func NewCoinGecko(baseURL string, opts ...Option) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	return &CoinGecko{rest: newRESTClient("coingecko", strings.TrimRight(baseURL, "/"), opts...)}
}

var _ PriceSource = (*CoinGecko)(nil)

// marketsEntry is one row of /coins/markets.
type marketsEntry struct {
	ID           string   `json:"id"`
	Symbol       string   `json:"symbol"`
	CurrentPrice *float64 `json:"current_price"`
	MarketCap    *float64 `json:"market_cap"`
}

// ListRankedTokens returns one page of tokens ordered by market cap, descending.
func (c *CoinGecko) ListRankedTokens(ctx context.Context, page, perPage int) ([]domain.Token, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("page", strconv.Itoa(page))
	params.Set("sparkline", "false")

	var entries []marketsEntry
	if err := c.rest.getJSON(ctx, "/coins/markets", "/coins/markets", params, &entries); err != nil {
		return nil, err
	}

	tokens := make([]domain.Token, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		t := domain.Token{
			ID:     e.ID,
			Symbol: strings.ToUpper(e.Symbol),
		}
		if e.CurrentPrice != nil {
			t.Price = *e.CurrentPrice
		}
		if e.MarketCap != nil {
			t.MarketCap = *e.MarketCap
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// coinDetail is the subset of /coins/{id} we read.
type coinDetail struct {
	ID         string    `json:"id"`
	Categories []*string `json:"categories"`
}

// GetCategories returns provider categories of a token. Missing categories yield an empty slice.
func (c *CoinGecko) GetCategories(ctx context.Context, id string) ([]string, error) {
	params := url.Values{}
	params.Set("localization", "false")
	params.Set("tickers", "false")
	params.Set("market_data", "false")
	params.Set("community_data", "false")
	params.Set("developer_data", "false")
	params.Set("sparkline", "false")

	var detail coinDetail
	if err := c.rest.getJSON(ctx, "/coins/{id}", "/coins/"+url.PathEscape(id), params, &detail); err != nil {
		return nil, err
	}

	categories := make([]string, 0, len(detail.Categories))
	for _, cat := range detail.Categories {
		if cat != nil && *cat != "" {
			categories = append(categories, *cat)
		}
	}
	return categories, nil
}

// GetLivePrice returns the current USD price.
func (c *CoinGecko) GetLivePrice(ctx context.Context, id string) (float64, error) {
	params := url.Values{}
	params.Set("ids", id)
	params.Set("vs_currencies", "usd")

	var result map[string]map[string]float64
	if err := c.rest.getJSON(ctx, "/simple/price", "/simple/price", params, &result); err != nil {
		return 0, err
	}

	price, ok := result[id]["usd"]
	if !ok {
		return 0, fmt.Errorf("%w: coingecko: no usd price for %s", domain.ErrDataFetch, id)
	}
	return price, nil
}

// historyResponse is the subset of /coins/{id}/history we read.
type historyResponse struct {
	MarketData *struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

// GetHistoricPrice returns the USD price on the UTC day of at.
func (c *CoinGecko) GetHistoricPrice(ctx context.Context, id string, at time.Time) (float64, error) {
	params := url.Values{}
	params.Set("date", at.UTC().Format("02-01-2006"))
	params.Set("localization", "false")

	var result historyResponse
	if err := c.rest.getJSON(ctx, "/coins/{id}/history", "/coins/"+url.PathEscape(id)+"/history", params, &result); err != nil {
		return 0, err
	}

	if result.MarketData == nil {
		return 0, fmt.Errorf("%w: coingecko: no market data for %s on %s", domain.ErrDataFetch, id, params.Get("date"))
	}
	price, ok := result.MarketData.CurrentPrice["usd"]
	if !ok {
		return 0, fmt.Errorf("%w: coingecko: no usd price for %s on %s", domain.ErrDataFetch, id, params.Get("date"))
	}
	return price, nil
}
