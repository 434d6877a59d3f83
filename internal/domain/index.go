package domain

import "github.com/ethereum/go-ethereum/common"

// IndexRecord mirrors the on-chain registry entry of a deployed index.
// The registry is the only source of truth for index existence.
type IndexRecord struct {
	IndexID          uint64
	Name             string
	Ticker           string
	Curator          common.Address
	Fund             common.Address
	CuratorFee       uint64
	LastPrice        float64
	LastWeightUpdate int64 // unix seconds, zero if never published
}

// Exists reports whether the registry returned a populated record.
func (r *IndexRecord) Exists() bool {
	return r != nil && r.Curator != (common.Address{})
}

// IndexDefinition describes how one index is built each cycle.
type IndexDefinition struct {
	IndexID            uint64
	Name               string
	Ticker             string
	CustodyID          string
	Scheme             WeightScheme
	UnitWeight         uint64 // used only by SchemeFixedUnit
	TargetCount        int
	ExcludedCategories []string
	Allowlist          []string          // provider ids never excluded by category
	FallbackTokens     []string          // provider ids appended on shortfall
	AddressOverrides   map[string]string // provider id -> hex address
	QuoteAssets        []string          // exchange quote assets considered tradable
	MinListingAgeDays  int
	CuratorFee         uint64
	FeeReceiver        string
	ChainID            uint64
	ChainSelector      uint64
}

// PendingFund is a fund contract deployed for an index whose registry
// registration has not succeeded yet. The next cycle registers it instead of
// deploying another one.
type PendingFund struct {
	IndexID    uint64
	ChainID    uint64
	Fund       common.Address
	DeployedAt int64 // unix seconds
}
