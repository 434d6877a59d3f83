package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/storage"
)

// RebalanceStore implements storage.RebalanceStore using PostgreSQL.
type RebalanceStore struct {
	pool *Pool
}

// NewRebalanceStore creates a new RebalanceStore.
func NewRebalanceStore(pool *Pool) *RebalanceStore {
	return &RebalanceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RebalanceStore = (*RebalanceStore)(nil)

// weightJSON is the JSONB element of index_rebalances.weights.
type weightJSON struct {
	Token  string `json:"token"`
	Weight uint64 `json:"weight"`
}

// InsertIfAbsent stores r unless (index_id, timestamp) already exists.
func (s *RebalanceStore) InsertIfAbsent(ctx context.Context, r *domain.Rebalance) (bool, error) {
	if err := storage.ValidateRebalance(r); err != nil {
		return false, err
	}

	weights := make([]weightJSON, len(r.Weights))
	for i, w := range r.Weights {
		weights[i] = weightJSON{Token: w.Token.Hex(), Weight: w.Weight}
	}
	weightsJSON, err := json.Marshal(weights)
	if err != nil {
		return false, fmt.Errorf("marshal weights: %w", err)
	}
	prices := r.Prices
	if prices == nil {
		prices = map[string]float64{}
	}
	pricesJSON, err := json.Marshal(prices)
	if err != nil {
		return false, fmt.Errorf("marshal prices: %w", err)
	}

	query := `
		INSERT INTO index_rebalances (
			index_id, timestamp, weights, prices, price, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (index_id, timestamp) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		int64(r.IndexID),
		r.Timestamp,
		weightsJSON,
		pricesJSON,
		r.Price,
		r.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert rebalance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get retrieves one rebalance. Returns ErrNotFound if not exists.
func (s *RebalanceStore) Get(ctx context.Context, indexID uint64, timestamp int64) (*domain.Rebalance, error) {
	query := `
		SELECT index_id, timestamp, weights, prices, price, created_at
		FROM index_rebalances
		WHERE index_id = $1 AND timestamp = $2
	`

	row := s.pool.QueryRow(ctx, query, int64(indexID), timestamp)
	r, err := scanRebalance(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get rebalance: %w", err)
	}
	return r, nil
}

// GetByIndex retrieves all rebalances of an index, ordered by timestamp ASC.
func (s *RebalanceStore) GetByIndex(ctx context.Context, indexID uint64) ([]*domain.Rebalance, error) {
	query := `
		SELECT index_id, timestamp, weights, prices, price, created_at
		FROM index_rebalances
		WHERE index_id = $1
		ORDER BY timestamp ASC
	`

	rows, err := s.pool.Query(ctx, query, int64(indexID))
	if err != nil {
		return nil, fmt.Errorf("get rebalances by index: %w", err)
	}
	defer rows.Close()

	var result []*domain.Rebalance
	for rows.Next() {
		r, err := scanRebalance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rebalance row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rebalance rows: %w", err)
	}
	return result, nil
}

// scanRebalance scans a single row into Rebalance.
func scanRebalance(row pgx.Row) (*domain.Rebalance, error) {
	var r domain.Rebalance
	var indexID int64
	var weightsJSON, pricesJSON []byte

	err := row.Scan(
		&indexID,
		&r.Timestamp,
		&weightsJSON,
		&pricesJSON,
		&r.Price,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.IndexID = uint64(indexID)

	var weights []weightJSON
	if err := json.Unmarshal(weightsJSON, &weights); err != nil {
		return nil, fmt.Errorf("unmarshal weights: %w", err)
	}
	r.Weights = make([]domain.TokenWeight, len(weights))
	for i, w := range weights {
		r.Weights[i] = domain.TokenWeight{Token: common.HexToAddress(w.Token), Weight: w.Weight}
	}

	if err := json.Unmarshal(pricesJSON, &r.Prices); err != nil {
		return nil, fmt.Errorf("unmarshal prices: %w", err)
	}
	return &r, nil
}
