// Package weighting converts a constituent set into weights and an aggregate price.
package weighting

import (
	"fmt"

	"github.com/shopspring/decimal"

	"crypto-index-lab/internal/domain"
)

var totalBP = decimal.NewFromInt(domain.TotalBasisPoints)

// Allocation is the result of weighting one constituent set.
type Allocation struct {
	Constituents   []domain.Constituent // same order as the input tokens
	AggregatePrice float64
	Scheme         domain.WeightScheme
}

// Weights returns the on-chain (address, weight) pairs in constituent order.
func (a *Allocation) Weights() []domain.TokenWeight {
	return domain.ToTokenWeights(a.Constituents)
}

// Allocate assigns weights to tokens according to scheme.
// unitWeight is only used by the fixed-unit scheme.
// An empty token set yields an empty allocation with a zero price.
func Allocate(tokens []domain.Token, scheme domain.WeightScheme, unitWeight uint64) (*Allocation, error) {
	if !scheme.IsValid() {
		return nil, fmt.Errorf("%w: unknown scheme %q", domain.ErrInvalidWeights, scheme)
	}

	alloc := &Allocation{Scheme: scheme, Constituents: []domain.Constituent{}}
	if len(tokens) == 0 {
		return alloc, nil
	}

	var weights []uint64
	switch scheme {
	case domain.SchemeEqual:
		weights = EqualWeights(len(tokens))
	case domain.SchemeFixedUnit:
		if unitWeight == 0 {
			return nil, fmt.Errorf("%w: fixed-unit scheme needs a positive unit weight", domain.ErrInvalidWeights)
		}
		weights = make([]uint64, len(tokens))
		for i := range weights {
			weights[i] = unitWeight
		}
	}

	alloc.Constituents = make([]domain.Constituent, len(tokens))
	for i, tok := range tokens {
		alloc.Constituents[i] = domain.Constituent{Token: tok, Weight: weights[i]}
	}
	alloc.AggregatePrice = AggregatePrice(alloc.Constituents, scheme)
	return alloc, nil
}

// EqualWeights splits 10000 basis points across n constituents.
// Each gets floor(10000/n); the remainder goes to the first.
func EqualWeights(n int) []uint64 {
	if n <= 0 {
		return nil
	}
	share := uint64(domain.TotalBasisPoints / n)
	rem := uint64(domain.TotalBasisPoints % n)

	out := make([]uint64, n)
	for i := range out {
		out[i] = share
	}
	out[0] += rem
	return out
}

// AggregatePrice computes the index price of a weighted set.
//
// Basis-point scheme: sum(price_i * weight_i / 10000).
// Fixed-unit scheme: weighted mean sum(price_i * weight_i) / sum(weight_i).
func AggregatePrice(constituents []domain.Constituent, scheme domain.WeightScheme) float64 {
	if len(constituents) == 0 {
		return 0
	}

	sum := decimal.Zero
	weightSum := decimal.Zero
	for _, c := range constituents {
		w := decimal.NewFromInt(int64(c.Weight))
		sum = sum.Add(decimal.NewFromFloat(c.Token.Price).Mul(w))
		weightSum = weightSum.Add(w)
	}

	denom := totalBP
	if scheme == domain.SchemeFixedUnit {
		denom = weightSum
	}
	if denom.IsZero() {
		return 0
	}
	return sum.Div(denom).InexactFloat64()
}

// Validate checks a weight set against its scheme.
func Validate(weights []domain.TokenWeight, scheme domain.WeightScheme) error {
	if len(weights) == 0 {
		return fmt.Errorf("%w: empty weight set", domain.ErrInvalidWeights)
	}
	seen := make(map[string]struct{}, len(weights))
	for _, w := range weights {
		key := w.Token.Hex()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate token %s", domain.ErrInvalidWeights, key)
		}
		seen[key] = struct{}{}
	}
	if scheme == domain.SchemeEqual {
		if sum := domain.SumWeights(weights); sum != domain.TotalBasisPoints {
			return fmt.Errorf("%w: weights sum to %d, want %d", domain.ErrInvalidWeights, sum, domain.TotalBasisPoints)
		}
	}
	return nil
}
