package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/storage"
)

// PendingFundStore implements storage.PendingFundStore using PostgreSQL.
type PendingFundStore struct {
	pool *Pool
}

// NewPendingFundStore creates a new PendingFundStore.
func NewPendingFundStore(pool *Pool) *PendingFundStore {
	return &PendingFundStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PendingFundStore = (*PendingFundStore)(nil)

// Put records f, replacing any earlier pending fund of the index.
func (s *PendingFundStore) Put(ctx context.Context, f *domain.PendingFund) error {
	if err := storage.ValidatePendingFund(f); err != nil {
		return err
	}

	query := `
		INSERT INTO pending_funds (index_id, chain_id, fund, deployed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (index_id) DO UPDATE SET
			chain_id = EXCLUDED.chain_id,
			fund = EXCLUDED.fund,
			deployed_at = EXCLUDED.deployed_at
	`
	if _, err := s.pool.Exec(ctx, query, int64(f.IndexID), int64(f.ChainID), f.Fund.Hex(), f.DeployedAt); err != nil {
		return fmt.Errorf("put pending fund: %w", err)
	}
	return nil
}

// Get retrieves the pending fund of an index. Returns ErrNotFound if none.
func (s *PendingFundStore) Get(ctx context.Context, indexID uint64) (*domain.PendingFund, error) {
	query := `
		SELECT index_id, chain_id, fund, deployed_at
		FROM pending_funds
		WHERE index_id = $1
	`

	var (
		id, chainID int64
		fund        string
		f           domain.PendingFund
	)
	err := s.pool.QueryRow(ctx, query, int64(indexID)).Scan(&id, &chainID, &fund, &f.DeployedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pending fund: %w", err)
	}
	f.IndexID = uint64(id)
	f.ChainID = uint64(chainID)
	f.Fund = common.HexToAddress(fund)
	return &f, nil
}

// Delete forgets the pending fund of an index.
func (s *PendingFundStore) Delete(ctx context.Context, indexID uint64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pending_funds WHERE index_id = $1`, int64(indexID)); err != nil {
		return fmt.Errorf("delete pending fund: %w", err)
	}
	return nil
}
