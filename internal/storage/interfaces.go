package storage

import (
	"context"

	"crypto-index-lab/internal/domain"
)

// CompositionStore provides access to index_compositions storage.
// Rows are append-only: a later rebalance adds rows, it never rewrites old ones.
type CompositionStore interface {
	// InsertBulk appends rows atomically. Rows whose (index_id, timestamp, token_address)
	// already exists are left untouched. Returns the number of rows actually inserted.
	InsertBulk(ctx context.Context, rows []*domain.CompositionRow) (int, error)

	// GetByTimestamp retrieves the composition of an index at one rebalance, in insertion order.
	GetByTimestamp(ctx context.Context, indexID uint64, timestamp int64) ([]*domain.CompositionRow, error)

	// GetLatest retrieves the composition with the greatest timestamp. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, indexID uint64) ([]*domain.CompositionRow, error)
}

// RebalanceStore provides access to index_rebalances storage.
type RebalanceStore interface {
	// InsertIfAbsent stores r unless (index_id, timestamp) already exists.
	// Returns true if the row was inserted, false if it was already present.
	InsertIfAbsent(ctx context.Context, r *domain.Rebalance) (bool, error)

	// Get retrieves one rebalance. Returns ErrNotFound if not exists.
	Get(ctx context.Context, indexID uint64, timestamp int64) (*domain.Rebalance, error)

	// GetByIndex retrieves all rebalances of an index, ordered by timestamp ASC.
	GetByIndex(ctx context.Context, indexID uint64) ([]*domain.Rebalance, error)
}

// ListingSnapshotStore provides access to listing_snapshots storage.
type ListingSnapshotStore interface {
	// InsertBulk stores snapshot rows. Rows whose (symbol, fetched_at) already exists are kept.
	// Returns the number of rows actually inserted.
	InsertBulk(ctx context.Context, rows []*domain.ListingSnapshot) (int, error)

	// GetByDay retrieves all rows fetched on the given UTC day (unix seconds at midnight),
	// ordered by symbol ASC.
	GetByDay(ctx context.Context, day int64) ([]*domain.ListingSnapshot, error)
}

// HistoryStore provides access to index_history storage.
type HistoryStore interface {
	// ReplaceSeries swaps the stored series of an index for points.
	ReplaceSeries(ctx context.Context, indexID uint64, points []*domain.HistoryPoint) error

	// GetSeries retrieves the series of an index, ordered by timestamp ASC.
	GetSeries(ctx context.Context, indexID uint64) ([]*domain.HistoryPoint, error)
}

// PendingFundStore provides access to pending_funds storage: at most one
// unregistered fund per index.
type PendingFundStore interface {
	// Put records f, replacing any earlier pending fund of the index.
	Put(ctx context.Context, f *domain.PendingFund) error

	// Get retrieves the pending fund of an index. Returns ErrNotFound if none.
	Get(ctx context.Context, indexID uint64) (*domain.PendingFund, error)

	// Delete forgets the pending fund of an index. Deleting a missing entry is not an error.
	Delete(ctx context.Context, indexID uint64) error
}
