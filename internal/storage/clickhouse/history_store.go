package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ethereum/go-ethereum/common"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/storage"
)

// HistoryStore implements storage.HistoryStore using ClickHouse.
type HistoryStore struct {
	conn *Conn
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(conn *Conn) *HistoryStore {
	return &HistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// ReplaceSeries deletes the stored series of an index and inserts points.
// The delete mutation is waited for before inserting.
func (s *HistoryStore) ReplaceSeries(ctx context.Context, indexID uint64, points []*domain.HistoryPoint) error {
	for _, p := range points {
		if p == nil {
			return storage.ErrInvalidInput
		}
	}

	syncCtx := clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"mutations_sync": 2,
	}))
	if err := s.conn.Exec(syncCtx, `ALTER TABLE index_history DELETE WHERE index_id = ?`, indexID); err != nil {
		return fmt.Errorf("delete index history: %w", err)
	}

	if len(points) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO index_history (
			index_id, timestamp, price, tokens, weights, chain_selector, block_number, tx_hash
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		tokens := make([]string, len(p.Weights))
		weights := make([]uint64, len(p.Weights))
		for i, w := range p.Weights {
			tokens[i] = w.Token.Hex()
			weights[i] = w.Weight
		}

		err = batch.Append(
			indexID, p.Timestamp, p.Price,
			tokens, weights,
			p.ChainSelector, p.BlockNumber, p.TxHash,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetSeries retrieves the series of an index, ordered by timestamp ASC.
func (s *HistoryStore) GetSeries(ctx context.Context, indexID uint64) ([]*domain.HistoryPoint, error) {
	query := `
		SELECT index_id, timestamp, price, tokens, weights, chain_selector, block_number, tx_hash
		FROM index_history FINAL
		WHERE index_id = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, indexID)
	if err != nil {
		return nil, fmt.Errorf("query index history: %w", err)
	}
	defer rows.Close()

	return scanHistory(rows)
}

// scanHistory scans multiple rows.
func scanHistory(rows chRows) ([]*domain.HistoryPoint, error) {
	var points []*domain.HistoryPoint

	for rows.Next() {
		var p domain.HistoryPoint
		var tokens []string
		var weights []uint64

		err := rows.Scan(
			&p.IndexID, &p.Timestamp, &p.Price,
			&tokens, &weights,
			&p.ChainSelector, &p.BlockNumber, &p.TxHash,
		)
		if err != nil {
			return nil, fmt.Errorf("scan index history row: %w", err)
		}
		if len(tokens) != len(weights) {
			return nil, fmt.Errorf("index history row at %d: %d tokens, %d weights", p.Timestamp, len(tokens), len(weights))
		}

		p.Weights = make([]domain.TokenWeight, len(tokens))
		for i := range tokens {
			p.Weights[i] = domain.TokenWeight{Token: common.HexToAddress(tokens[i]), Weight: weights[i]}
		}
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index history rows: %w", err)
	}

	return points, nil
}
