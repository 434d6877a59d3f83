package domain

// ListingStatusTrading is the exchange status of an actively tradable pair.
const ListingStatusTrading = "TRADING"

// TradingPair is a live exchange pair status.
type TradingPair struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Status     string
}

// IsTrading returns true if the pair is currently tradable.
func (p TradingPair) IsTrading() bool {
	return p.Status == ListingStatusTrading
}

// ListingSnapshot is one daily exchange listing row.
// Corresponds to listing_snapshots table in PostgreSQL.
type ListingSnapshot struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Status     string
	FetchedAt  int64 // unix seconds, truncated to the UTC day
}

// ListingDiff is the set difference of two daily snapshots.
type ListingDiff struct {
	Listed   []string // trading today, not trading on the previous day
	Delisted []string // trading on the previous day, not today
}
