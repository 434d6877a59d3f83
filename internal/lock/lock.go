// Package lock serializes rebalance cycles per index.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrHeld is returned when another cycle already holds the claim for an index.
var ErrHeld = errors.New("index claim held by another cycle")

// Release gives a claim back. It is safe to call once.
type Release func(ctx context.Context) error

// Locker hands out exclusive per-index claims. Acquire never blocks waiting
// for a holder: a held claim fails immediately with ErrHeld.
type Locker interface {
	Acquire(ctx context.Context, indexID uint64) (Release, error)
}

// Key returns the claim key of an index.
func Key(indexID uint64) string {
	return fmt.Sprintf("crypto-index-lab:rebalance:%d", indexID)
}

// Memory is an in-process Locker keyed by index id.
type Memory struct {
	mu   sync.Mutex
	held map[uint64]struct{}
}

// NewMemory creates an in-process Locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[uint64]struct{})}
}

var _ Locker = (*Memory)(nil)

// Acquire claims indexID for the caller.
func (m *Memory) Acquire(_ context.Context, indexID uint64) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[indexID]; ok {
		return nil, fmt.Errorf("%w: index %d", ErrHeld, indexID)
	}
	m.held[indexID] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, indexID)
			m.mu.Unlock()
		})
		return nil
	}, nil
}
