package memory

import (
	"context"
	"sort"
	"sync"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/storage"
)

// HistoryStore is an in-memory implementation of storage.HistoryStore.
type HistoryStore struct {
	mu     sync.RWMutex
	series map[uint64][]*domain.HistoryPoint
}

// NewHistoryStore creates a new in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{series: make(map[uint64][]*domain.HistoryPoint)}
}

var _ storage.HistoryStore = (*HistoryStore)(nil)

// ReplaceSeries swaps the stored series of an index.
func (s *HistoryStore) ReplaceSeries(_ context.Context, indexID uint64, points []*domain.HistoryPoint) error {
	series := make([]*domain.HistoryPoint, 0, len(points))
	for _, p := range points {
		if p == nil {
			return storage.ErrInvalidInput
		}
		series = append(series, copyPoint(p))
	}
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp < series[j].Timestamp
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[indexID] = series
	return nil
}

// GetSeries retrieves the series of an index, ordered by timestamp ASC.
func (s *HistoryStore) GetSeries(_ context.Context, indexID uint64) ([]*domain.HistoryPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.HistoryPoint, 0, len(s.series[indexID]))
	for _, p := range s.series[indexID] {
		result = append(result, copyPoint(p))
	}
	return result, nil
}

func copyPoint(p *domain.HistoryPoint) *domain.HistoryPoint {
	c := *p
	c.Weights = append([]domain.TokenWeight(nil), p.Weights...)
	return &c
}
