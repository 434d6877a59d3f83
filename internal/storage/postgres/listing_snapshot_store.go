package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/storage"
)

// ListingSnapshotStore implements storage.ListingSnapshotStore using PostgreSQL.
type ListingSnapshotStore struct {
	pool *Pool
}

// NewListingSnapshotStore creates a new ListingSnapshotStore.
func NewListingSnapshotStore(pool *Pool) *ListingSnapshotStore {
	return &ListingSnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ListingSnapshotStore = (*ListingSnapshotStore)(nil)

// InsertBulk stores rows atomically, keeping existing (symbol, fetched_at) rows.
func (s *ListingSnapshotStore) InsertBulk(ctx context.Context, rows []*domain.ListingSnapshot) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := storage.ValidateListingSnapshots(rows); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO listing_snapshots (
			symbol, base_asset, quote_asset, status, fetched_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, fetched_at) DO NOTHING
	`

	inserted := 0
	err := s.pool.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range rows {
			batch.Queue(query, r.Symbol, r.BaseAsset, r.QuoteAsset, r.Status, r.FetchedAt)
		}

		results := tx.SendBatch(ctx, batch)
		for range rows {
			tag, err := results.Exec()
			if err != nil {
				results.Close()
				return fmt.Errorf("insert listing snapshot: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetByDay retrieves all rows fetched on day, ordered by symbol ASC.
func (s *ListingSnapshotStore) GetByDay(ctx context.Context, day int64) ([]*domain.ListingSnapshot, error) {
	query := `
		SELECT symbol, base_asset, quote_asset, status, fetched_at
		FROM listing_snapshots
		WHERE fetched_at = $1
		ORDER BY symbol ASC
	`

	rows, err := s.pool.Query(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("get listing snapshots by day: %w", err)
	}
	defer rows.Close()

	var result []*domain.ListingSnapshot
	for rows.Next() {
		var r domain.ListingSnapshot
		if err := rows.Scan(&r.Symbol, &r.BaseAsset, &r.QuoteAsset, &r.Status, &r.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan listing snapshot row: %w", err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listing snapshot rows: %w", err)
	}
	return result, nil
}
