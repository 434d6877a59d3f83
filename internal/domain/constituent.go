package domain

import "github.com/ethereum/go-ethereum/common"

// TotalBasisPoints is the weight sum of a valid basis-point constituent set.
const TotalBasisPoints = 10000

// Constituent is a token with its assigned weight inside one index at one rebalance.
type Constituent struct {
	Token  Token
	Weight uint64 // basis points
}

// TokenWeight is one (token address, weight) pair as it travels on-chain.
type TokenWeight struct {
	Token  common.Address
	Weight uint64
}

// WeightScheme selects how the allocator assigns weights.
type WeightScheme string

const (
	// SchemeEqual assigns floor(10000/n) to every constituent, remainder to the first.
	SchemeEqual WeightScheme = "equal"

	// SchemeFixedUnit assigns the same configured unit weight to every constituent.
	// The sum is not required to equal 10000.
	SchemeFixedUnit WeightScheme = "fixed-unit"
)

// IsValid returns true if the scheme is known.
func (s WeightScheme) IsValid() bool {
	return s == SchemeEqual || s == SchemeFixedUnit
}

// SumWeights returns the total weight of a set.
func SumWeights(weights []TokenWeight) uint64 {
	var sum uint64
	for _, w := range weights {
		sum += w.Weight
	}
	return sum
}

// ToTokenWeights projects constituents to their on-chain weight pairs, preserving order.
func ToTokenWeights(constituents []Constituent) []TokenWeight {
	out := make([]TokenWeight, len(constituents))
	for i, c := range constituents {
		out[i] = TokenWeight{Token: c.Token.Address, Weight: c.Weight}
	}
	return out
}
