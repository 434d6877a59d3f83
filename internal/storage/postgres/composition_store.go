package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/storage"
)

// CompositionStore implements storage.CompositionStore using PostgreSQL.
type CompositionStore struct {
	pool *Pool
}

// NewCompositionStore creates a new CompositionStore.
func NewCompositionStore(pool *Pool) *CompositionStore {
	return &CompositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CompositionStore = (*CompositionStore)(nil)

// InsertBulk appends rows atomically, skipping existing (index_id, timestamp, token_address) keys.
func (s *CompositionStore) InsertBulk(ctx context.Context, rows []*domain.CompositionRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := storage.ValidateCompositionRows(rows); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO index_compositions (
			index_id, timestamp, token_address, token_id, symbol, weight, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (index_id, timestamp, token_address) DO NOTHING
	`

	inserted := 0
	err := s.pool.inTx(ctx, func(tx pgx.Tx) error {
		for _, r := range rows {
			tag, err := tx.Exec(ctx, query,
				int64(r.IndexID),
				r.Timestamp,
				r.TokenAddress,
				r.TokenID,
				r.Symbol,
				int64(r.Weight),
				r.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert composition row: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetByTimestamp retrieves the composition of an index at one rebalance, in insertion order.
func (s *CompositionStore) GetByTimestamp(ctx context.Context, indexID uint64, timestamp int64) ([]*domain.CompositionRow, error) {
	query := `
		SELECT index_id, timestamp, token_address, token_id, symbol, weight, created_at
		FROM index_compositions
		WHERE index_id = $1 AND timestamp = $2
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query, int64(indexID), timestamp)
	if err != nil {
		return nil, fmt.Errorf("get composition by timestamp: %w", err)
	}
	defer rows.Close()

	return scanCompositionRows(rows)
}

// GetLatest retrieves the composition with the greatest timestamp. Returns ErrNotFound if none.
func (s *CompositionStore) GetLatest(ctx context.Context, indexID uint64) ([]*domain.CompositionRow, error) {
	query := `
		SELECT index_id, timestamp, token_address, token_id, symbol, weight, created_at
		FROM index_compositions
		WHERE index_id = $1
		  AND timestamp = (SELECT max(timestamp) FROM index_compositions WHERE index_id = $1)
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query, int64(indexID))
	if err != nil {
		return nil, fmt.Errorf("get latest composition: %w", err)
	}
	defer rows.Close()

	result, err := scanCompositionRows(rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, storage.ErrNotFound
	}
	return result, nil
}

// scanCompositionRows scans multiple rows into a slice of CompositionRow.
func scanCompositionRows(rows pgx.Rows) ([]*domain.CompositionRow, error) {
	var result []*domain.CompositionRow

	for rows.Next() {
		var r domain.CompositionRow
		var indexID, weight int64

		err := rows.Scan(
			&indexID,
			&r.Timestamp,
			&r.TokenAddress,
			&r.TokenID,
			&r.Symbol,
			&weight,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan composition row: %w", err)
		}

		r.IndexID = uint64(indexID)
		r.Weight = uint64(weight)
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate composition rows: %w", err)
	}

	return result, nil
}
