package memory

import (
	"context"
	"sync"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/storage"
)

type compositionKey struct {
	indexID      uint64
	timestamp    int64
	tokenAddress string
}

// CompositionStore is an in-memory implementation of storage.CompositionStore.
type CompositionStore struct {
	mu   sync.RWMutex
	rows []*domain.CompositionRow // insertion order
	keys map[compositionKey]struct{}
}

// NewCompositionStore creates a new in-memory composition store.
func NewCompositionStore() *CompositionStore {
	return &CompositionStore{keys: make(map[compositionKey]struct{})}
}

var _ storage.CompositionStore = (*CompositionStore)(nil)

// InsertBulk appends rows, skipping keys that already exist.
func (s *CompositionStore) InsertBulk(_ context.Context, rows []*domain.CompositionRow) (int, error) {
	if err := storage.ValidateCompositionRows(rows); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range rows {
		k := compositionKey{r.IndexID, r.Timestamp, r.TokenAddress}
		if _, exists := s.keys[k]; exists {
			continue
		}
		rowCopy := *r
		s.rows = append(s.rows, &rowCopy)
		s.keys[k] = struct{}{}
		inserted++
	}
	return inserted, nil
}

// GetByTimestamp retrieves the composition of an index at one rebalance.
func (s *CompositionStore) GetByTimestamp(_ context.Context, indexID uint64, timestamp int64) ([]*domain.CompositionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CompositionRow
	for _, r := range s.rows {
		if r.IndexID == indexID && r.Timestamp == timestamp {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}
	return result, nil
}

// GetLatest retrieves the composition with the greatest timestamp.
func (s *CompositionStore) GetLatest(ctx context.Context, indexID uint64) ([]*domain.CompositionRow, error) {
	s.mu.RLock()
	latest, found := int64(0), false
	for _, r := range s.rows {
		if r.IndexID == indexID && (!found || r.Timestamp > latest) {
			latest, found = r.Timestamp, true
		}
	}
	s.mu.RUnlock()

	if !found {
		return nil, storage.ErrNotFound
	}
	return s.GetByTimestamp(ctx, indexID, latest)
}
