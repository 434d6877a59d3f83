// Package eligibility filters and ranks candidate tokens into an index's constituent set.
package eligibility

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/logging"
	"crypto-index-lab/internal/marketdata"
	"crypto-index-lab/internal/retry"
)

// Request describes one selection.
type Request struct {
	IndexID            uint64
	TargetCount        int
	ExcludedCategories []string
	Allowlist          []string          // provider ids never excluded by category
	FallbackTokens     []string          // provider ids appended on shortfall, in order
	AddressOverrides   map[string]string // provider id -> hex address
	QuoteAssets        []string          // quote assets counted as tradable; empty means any
	MinListingAge      time.Duration     // 0 disables the listing-age filter
}

// RequestFor builds a Request from an index definition.
func RequestFor(def domain.IndexDefinition) Request {
	return Request{
		IndexID:            def.IndexID,
		TargetCount:        def.TargetCount,
		ExcludedCategories: def.ExcludedCategories,
		Allowlist:          def.Allowlist,
		FallbackTokens:     def.FallbackTokens,
		AddressOverrides:   def.AddressOverrides,
		QuoteAssets:        def.QuoteAssets,
		MinListingAge:      time.Duration(def.MinListingAgeDays) * 24 * time.Hour,
	}
}

// Selection is the outcome of a selection.
type Selection struct {
	Tokens       []domain.Token // ranked constituents, fallback tokens last
	Target       int
	FromFallback int
	Shortfall    bool // fewer tokens than Target: degraded, not an error
}

// Options for creating a Selector.
type Options struct {
	Source         marketdata.PriceSource
	Exchange       marketdata.Exchange
	Pages          marketdata.PageOptions
	CategoryPolicy retry.Policy // per-token category lookup retries
	Logger         *zerolog.Logger
	Now            func() time.Time
}

// Selector implements constituent selection.
type Selector struct {
	source         marketdata.PriceSource
	exchange       marketdata.Exchange
	pages          marketdata.PageOptions
	categoryPolicy retry.Policy
	logger         zerolog.Logger
	now            func() time.Time
}

// New creates a Selector.
func New(opts Options) *Selector {
	if opts.Pages.MaxPages == 0 {
		opts.Pages = marketdata.DefaultPageOptions()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Selector{
		source:         opts.Source,
		exchange:       opts.Exchange,
		pages:          opts.Pages,
		categoryPolicy: opts.CategoryPolicy,
		logger:         logging.OrNop(opts.Logger).With().Str("component", "eligibility").Logger(),
		now:            opts.Now,
	}
}

// SelectConstituents walks tokens in descending market-cap order and keeps
// those that are tradable on the exchange and not category-excluded, unless
// allowlisted. On shortfall, fallback tokens not already selected are appended.
func (s *Selector) SelectConstituents(ctx context.Context, req Request) (*Selection, error) {
	if req.TargetCount <= 0 {
		return nil, fmt.Errorf("target count must be positive, got %d", req.TargetCount)
	}

	ranked, err := marketdata.RankedTokens(ctx, s.source, s.pages, s.logger)
	if err != nil {
		return nil, fmt.Errorf("load ranked tokens: %w", err)
	}

	pairs, err := s.exchange.ListTradablePairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tradable pairs: %w", err)
	}
	tradable := marketdata.TradableBaseSymbols(pairs, req.QuoteAssets)
	pairByBase := firstPairByBase(pairs, req.QuoteAssets)

	excluded := domain.CategorySet(req.ExcludedCategories)
	allowed := idSet(req.Allowlist)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].MarketCap > ranked[j].MarketCap
	})

	sel := &Selection{Target: req.TargetCount}
	selected := make(map[string]struct{}, req.TargetCount)
	byID := make(map[string]domain.Token, len(ranked))

	for _, tok := range ranked {
		if _, dup := byID[tok.ID]; dup {
			continue
		}
		byID[tok.ID] = tok

		if len(sel.Tokens) >= req.TargetCount {
			continue
		}
		if _, ok := tradable[strings.ToUpper(tok.Symbol)]; !ok {
			continue
		}

		_, isAllowed := allowed[tok.ID]
		if len(excluded) > 0 && !isAllowed {
			tok.Categories = s.categories(ctx, tok.ID)
			if tok.HasCategory(excluded) {
				s.logger.Debug().Str("token", tok.ID).Strs("categories", tok.Categories).Msg("excluded by category")
				continue
			}
		}

		if req.MinListingAge > 0 && !s.listedLongEnough(ctx, pairByBase[strings.ToUpper(tok.Symbol)], req.MinListingAge) {
			continue
		}

		tok.Address = resolveAddress(tok, req.AddressOverrides)
		sel.Tokens = append(sel.Tokens, tok)
		selected[tok.ID] = struct{}{}
	}

	if len(sel.Tokens) < req.TargetCount {
		s.applyFallback(ctx, req, sel, selected, byID)
	}

	sel.Shortfall = len(sel.Tokens) < req.TargetCount
	if sel.Shortfall {
		s.logger.Warn().
			Uint64("index_id", req.IndexID).
			Int("selected", len(sel.Tokens)).
			Int("target", req.TargetCount).
			Int("from_fallback", sel.FromFallback).
			Msg("degraded selection: eligibility shortfall")
	}
	return sel, nil
}

// applyFallback appends designated fallback tokens not already selected until
// the target is reached or candidates run out.
func (s *Selector) applyFallback(ctx context.Context, req Request, sel *Selection, selected map[string]struct{}, byID map[string]domain.Token) {
	for _, id := range req.FallbackTokens {
		if len(sel.Tokens) >= req.TargetCount {
			return
		}
		if _, dup := selected[id]; dup {
			continue
		}

		tok, ok := byID[id]
		if !ok {
			price, err := s.source.GetLivePrice(ctx, id)
			if err != nil {
				s.logger.Warn().Err(err).Str("token", id).Msg("skipping fallback token without price")
				continue
			}
			tok = domain.Token{ID: id, Symbol: strings.ToUpper(id), Price: price}
		}

		tok.Address = resolveAddress(tok, req.AddressOverrides)
		sel.Tokens = append(sel.Tokens, tok)
		sel.FromFallback++
		selected[id] = struct{}{}
	}
}

// categories looks up token categories with bounded retries. A persistent
// failure is treated as "no categories".
func (s *Selector) categories(ctx context.Context, id string) []string {
	cats, err := retry.DoValue(ctx, s.categoryPolicy, func(ctx context.Context) ([]string, error) {
		return s.source.GetCategories(ctx, id)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("token", id).Msg("category lookup failed, treating as uncategorized")
		return nil
	}
	return cats
}

// listedLongEnough fails open: an unknown listing date keeps the token.
func (s *Selector) listedLongEnough(ctx context.Context, pairSymbol string, minAge time.Duration) bool {
	if pairSymbol == "" {
		return true
	}
	first, err := s.exchange.FirstTradingTime(ctx, pairSymbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("pair", pairSymbol).Msg("listing age unknown, keeping token")
		return true
	}
	return s.now().Sub(first) >= minAge
}

func resolveAddress(tok domain.Token, overrides map[string]string) common.Address {
	if hex, ok := overrides[tok.ID]; ok && common.IsHexAddress(hex) {
		return common.HexToAddress(hex)
	}
	if tok.Address != (common.Address{}) {
		return tok.Address
	}
	return domain.SyntheticAddress(tok.ID)
}

func firstPairByBase(pairs []domain.TradingPair, quoteAssets []string) map[string]string {
	quotes := idSet(upper(quoteAssets))
	out := make(map[string]string)
	for _, p := range pairs {
		if !p.IsTrading() {
			continue
		}
		if len(quotes) > 0 {
			if _, ok := quotes[strings.ToUpper(p.QuoteAsset)]; !ok {
				continue
			}
		}
		base := strings.ToUpper(p.BaseAsset)
		if _, ok := out[base]; !ok {
			out[base] = p.Symbol
		}
	}
	return out
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}
