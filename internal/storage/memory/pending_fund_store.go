package memory

import (
	"context"
	"sync"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/storage"
)

// PendingFundStore is an in-memory implementation of storage.PendingFundStore.
type PendingFundStore struct {
	mu   sync.RWMutex
	data map[uint64]domain.PendingFund
}

// NewPendingFundStore creates a new in-memory pending fund store.
func NewPendingFundStore() *PendingFundStore {
	return &PendingFundStore{data: make(map[uint64]domain.PendingFund)}
}

var _ storage.PendingFundStore = (*PendingFundStore)(nil)

// Put records f, replacing any earlier pending fund of the index.
func (s *PendingFundStore) Put(_ context.Context, f *domain.PendingFund) error {
	if err := storage.ValidatePendingFund(f); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[f.IndexID] = *f
	return nil
}

// Get retrieves the pending fund of an index.
func (s *PendingFundStore) Get(_ context.Context, indexID uint64) (*domain.PendingFund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.data[indexID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &f, nil
}

// Delete forgets the pending fund of an index.
func (s *PendingFundStore) Delete(_ context.Context, indexID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, indexID)
	return nil
}
