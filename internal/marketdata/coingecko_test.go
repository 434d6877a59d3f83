package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/retry"
)

func testOptions() []Option {
	return []Option{
		WithRateLimit(0, 0),
		WithRetryPolicy(retry.Policy{Attempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}),
	}
}

func TestCoinGecko_ListRankedTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/markets", r.URL.Path)
		assert.Equal(t, "market_cap_desc", r.URL.Query().Get("order"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("per_page"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": "bitcoin", "symbol": "btc", "current_price": 65000.5, "market_cap": 1.2e12},
			{"id": "ethereum", "symbol": "eth", "current_price": 3200.0, "market_cap": 4.0e11},
			{"id": "nullcoin", "symbol": "nul", "current_price": nil, "market_cap": nil},
		})
	}))
	defer server.Close()

	client := NewCoinGecko(server.URL, testOptions()...)
	tokens, err := client.ListRankedTokens(context.Background(), 2, 50)
	require.NoError(t, err)
	require.Len(t, tokens, 3)

	assert.Equal(t, "bitcoin", tokens[0].ID)
	assert.Equal(t, "BTC", tokens[0].Symbol)
	assert.InDelta(t, 65000.5, tokens[0].Price, 1e-9)
	assert.Zero(t, tokens[2].Price)
	assert.Zero(t, tokens[2].MarketCap)
}

func TestCoinGecko_GetCategories_MissingIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coins/tether":
			w.Write([]byte(`{"id":"tether","categories":["Stablecoins", null, ""]}`))
		default:
			w.Write([]byte(`{"id":"plain"}`))
		}
	}))
	defer server.Close()

	client := NewCoinGecko(server.URL, testOptions()...)

	cats, err := client.GetCategories(context.Background(), "tether")
	require.NoError(t, err)
	assert.Equal(t, []string{"Stablecoins"}, cats)

	cats, err = client.GetCategories(context.Background(), "plain")
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func TestCoinGecko_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"bitcoin":{"usd":64000}}`))
	}))
	defer server.Close()

	client := NewCoinGecko(server.URL, testOptions()...)
	price, err := client.GetLivePrice(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 64000.0, price)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCoinGecko_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewCoinGecko(server.URL, testOptions()...)
	_, err := client.GetCategories(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataFetch)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCoinGecko_GetHistoricPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/bitcoin/history", r.URL.Path)
		assert.Equal(t, "14-11-2023", r.URL.Query().Get("date"))
		w.Write([]byte(`{"market_data":{"current_price":{"usd":36500.25}}}`))
	}))
	defer server.Close()

	client := NewCoinGecko(server.URL, testOptions()...)
	price, err := client.GetHistoricPrice(context.Background(), "bitcoin", time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.Equal(t, 36500.25, price)
}

func TestCoinGecko_APIKeyHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get(CoinGeckoAPIKeyHeader))
		w.Write([]byte(`{"bitcoin":{"usd":1}}`))
	}))
	defer server.Close()

	opts := append(testOptions(), WithAPIKey(CoinGeckoAPIKeyHeader, "secret"))
	_, err := NewCoinGecko(server.URL, opts...).GetLivePrice(context.Background(), "bitcoin")
	require.NoError(t, err)
}
