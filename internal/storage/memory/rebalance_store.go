package memory

import (
	"context"
	"sort"
	"sync"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/storage"
)

type rebalanceKey struct {
	indexID   uint64
	timestamp int64
}

// RebalanceStore is an in-memory implementation of storage.RebalanceStore.
type RebalanceStore struct {
	mu   sync.RWMutex
	data map[rebalanceKey]*domain.Rebalance
}

// NewRebalanceStore creates a new in-memory rebalance store.
func NewRebalanceStore() *RebalanceStore {
	return &RebalanceStore{data: make(map[rebalanceKey]*domain.Rebalance)}
}

var _ storage.RebalanceStore = (*RebalanceStore)(nil)

// InsertIfAbsent stores r unless (index_id, timestamp) already exists.
func (s *RebalanceStore) InsertIfAbsent(_ context.Context, r *domain.Rebalance) (bool, error) {
	if err := storage.ValidateRebalance(r); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := rebalanceKey{r.IndexID, r.Timestamp}
	if _, exists := s.data[k]; exists {
		return false, nil
	}
	s.data[k] = copyRebalance(r)
	return true, nil
}

// Get retrieves one rebalance.
func (s *RebalanceStore) Get(_ context.Context, indexID uint64, timestamp int64) (*domain.Rebalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[rebalanceKey{indexID, timestamp}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyRebalance(r), nil
}

// GetByIndex retrieves all rebalances of an index, ordered by timestamp ASC.
func (s *RebalanceStore) GetByIndex(_ context.Context, indexID uint64) ([]*domain.Rebalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Rebalance
	for k, r := range s.data {
		if k.indexID == indexID {
			result = append(result, copyRebalance(r))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})
	return result, nil
}

func copyRebalance(r *domain.Rebalance) *domain.Rebalance {
	c := *r
	c.Weights = append([]domain.TokenWeight(nil), r.Weights...)
	if r.Prices != nil {
		c.Prices = make(map[string]float64, len(r.Prices))
		for k, v := range r.Prices {
			c.Prices[k] = v
		}
	}
	return &c
}
