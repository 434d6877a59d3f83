package domain

// HistoryPoint is one reconstructed (timestamp, price, weights) entry of an index.
// Corresponds to index_history table in ClickHouse.
type HistoryPoint struct {
	IndexID       uint64
	Timestamp     int64 // unix seconds
	Price         float64
	Weights       []TokenWeight
	ChainSelector uint64
	BlockNumber   uint64
	TxHash        string
}

// IndexedPoint is a point of a cumulative-return series.
type IndexedPoint struct {
	Timestamp int64
	Price     float64
	Value     float64
}
