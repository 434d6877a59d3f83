package domain

// CompositionRow is one persisted constituent of an index.
// Corresponds to index_compositions table in PostgreSQL. Append-only.
type CompositionRow struct {
	IndexID      uint64 // on-chain index id
	Timestamp    int64  // rebalance timestamp (unix seconds)
	TokenAddress string // hex address, checksummed
	TokenID      string // provider-native id
	Symbol       string
	Weight       uint64 // basis points (or unit weight for fixed-unit indices)
	CreatedAt    int64  // record creation time (unix seconds)
}

// Rebalance is one persisted weight-set snapshot.
// Corresponds to index_rebalances table in PostgreSQL, unique per (index_id, timestamp).
type Rebalance struct {
	IndexID   uint64
	Timestamp int64              // canonical ordering key (unix seconds)
	Weights   []TokenWeight      // ordered as published
	Prices    map[string]float64 // token address (hex) -> USD price
	Price     float64            // aggregate index price
	CreatedAt int64
}

// WeightsByAddress renders weights keyed by token address hex, the shape used
// in CSV exports.
func (r *Rebalance) WeightsByAddress() map[string]uint64 {
	out := make(map[string]uint64, len(r.Weights))
	for _, w := range r.Weights {
		out[w.Token.Hex()] = w.Weight
	}
	return out
}
