// Package stub provides in-memory market data sources for tests and dry runs.
package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/marketdata"
)

// ErrNotFound is returned when a token is unknown to the stub.
var ErrNotFound = errors.New("not found")

// PriceSource implements marketdata.PriceSource from fixed data.
type PriceSource struct {
	mu sync.Mutex

	Tokens         []domain.Token                // ranked order
	Categories     map[string][]string           // id -> categories
	CategoryErrors map[string]error              // id -> forced error
	Prices         map[string]float64            // id -> live price
	HistoricPrices map[string]map[string]float64 // id -> YYYY-MM-DD -> price
	PageErrors     map[int]error                 // page -> forced error

	CategoryCalls map[string]int
}

// NewPriceSource creates an empty stub.
func NewPriceSource() *PriceSource {
	return &PriceSource{
		Categories:     make(map[string][]string),
		CategoryErrors: make(map[string]error),
		Prices:         make(map[string]float64),
		HistoricPrices: make(map[string]map[string]float64),
		PageErrors:     make(map[int]error),
		CategoryCalls:  make(map[string]int),
	}
}

var _ marketdata.PriceSource = (*PriceSource)(nil)

// ListRankedTokens pages over Tokens.
func (s *PriceSource) ListRankedTokens(_ context.Context, page, perPage int) ([]domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.PageErrors[page]; err != nil {
		return nil, err
	}
	start := (page - 1) * perPage
	if start >= len(s.Tokens) || start < 0 {
		return nil, nil
	}
	end := start + perPage
	if end > len(s.Tokens) {
		end = len(s.Tokens)
	}
	out := make([]domain.Token, end-start)
	copy(out, s.Tokens[start:end])
	return out, nil
}

// GetCategories returns configured categories or a forced error.
func (s *PriceSource) GetCategories(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CategoryCalls[id]++
	if err := s.CategoryErrors[id]; err != nil {
		return nil, err
	}
	return append([]string(nil), s.Categories[id]...), nil
}

// GetLivePrice returns the configured price.
func (s *PriceSource) GetLivePrice(_ context.Context, id string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.Prices[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// GetHistoricPrice returns the configured price for the UTC day of at.
func (s *PriceSource) GetHistoricPrice(_ context.Context, id string, at time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.HistoricPrices[id][at.UTC().Format("2006-01-02")]
	if !ok {
		return 0, fmt.Errorf("%w: %s on %s", ErrNotFound, id, at.UTC().Format("2006-01-02"))
	}
	return p, nil
}

// Exchange implements marketdata.Exchange from fixed data.
type Exchange struct {
	Pairs        []domain.TradingPair
	PairsErr     error
	FirstTrading map[string]time.Time // symbol -> first kline
}

// NewExchange creates a stub exchange with the given TRADING base/quote pairs.
func NewExchange(quote string, bases ...string) *Exchange {
	e := &Exchange{FirstTrading: make(map[string]time.Time)}
	for _, b := range bases {
		e.Pairs = append(e.Pairs, domain.TradingPair{
			Symbol:     b + quote,
			BaseAsset:  b,
			QuoteAsset: quote,
			Status:     domain.ListingStatusTrading,
		})
	}
	return e
}

var _ marketdata.Exchange = (*Exchange)(nil)

// ListTradablePairs returns Pairs or PairsErr.
func (e *Exchange) ListTradablePairs(_ context.Context) ([]domain.TradingPair, error) {
	if e.PairsErr != nil {
		return nil, e.PairsErr
	}
	return append([]domain.TradingPair(nil), e.Pairs...), nil
}

// FirstTradingTime returns the configured first kline time.
func (e *Exchange) FirstTradingTime(_ context.Context, symbol string) (time.Time, error) {
	t, ok := e.FirstTrading[symbol]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	return t, nil
}
