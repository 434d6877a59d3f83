package memory

import (
	"context"
	"sort"
	"sync"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/storage"
)

type listingKey struct {
	symbol    string
	fetchedAt int64
}

// ListingSnapshotStore is an in-memory implementation of storage.ListingSnapshotStore.
type ListingSnapshotStore struct {
	mu   sync.RWMutex
	data map[listingKey]*domain.ListingSnapshot
}

// NewListingSnapshotStore creates a new in-memory listing snapshot store.
func NewListingSnapshotStore() *ListingSnapshotStore {
	return &ListingSnapshotStore{data: make(map[listingKey]*domain.ListingSnapshot)}
}

var _ storage.ListingSnapshotStore = (*ListingSnapshotStore)(nil)

// InsertBulk stores rows, keeping existing (symbol, fetched_at) rows.
func (s *ListingSnapshotStore) InsertBulk(_ context.Context, rows []*domain.ListingSnapshot) (int, error) {
	if err := storage.ValidateListingSnapshots(rows); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range rows {
		k := listingKey{r.Symbol, r.FetchedAt}
		if _, exists := s.data[k]; exists {
			continue
		}
		rowCopy := *r
		s.data[k] = &rowCopy
		inserted++
	}
	return inserted, nil
}

// GetByDay retrieves all rows fetched on day, ordered by symbol ASC.
func (s *ListingSnapshotStore) GetByDay(_ context.Context, day int64) ([]*domain.ListingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ListingSnapshot
	for k, r := range s.data {
		if k.fetchedAt == day {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result, nil
}
