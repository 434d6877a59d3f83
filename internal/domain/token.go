package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Token is a market-data snapshot of one asset taken during a rebalance cycle.
// Not persisted beyond the cycle.
type Token struct {
	ID         string         // provider-native id (e.g. "bitcoin")
	Symbol     string         // upper-case ticker symbol
	Address    common.Address // on-chain address used in weight payloads
	Categories []string       // provider categories, empty when unknown
	MarketCap  float64        // USD market capitalization
	Price      float64        // USD price at fetch time
}

// HasCategory reports whether the token is tagged with any of the given categories.
// Comparison is case-insensitive.
func (t Token) HasCategory(categories map[string]struct{}) bool {
	for _, c := range t.Categories {
		if _, ok := categories[strings.ToLower(c)]; ok {
			return true
		}
	}
	return false
}

// SyntheticAddress derives a deterministic placeholder address for assets
// without a native EVM deployment: the last 20 bytes of keccak256(id).
func SyntheticAddress(id string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(id))[12:])
}

// CategorySet normalizes category names into a lookup set.
func CategorySet(categories []string) map[string]struct{} {
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}
