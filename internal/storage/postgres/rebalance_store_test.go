package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/storage"
)

func TestRebalanceStore_InsertIfAbsent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRebalanceStore(pool)

	a := domain.SyntheticAddress("a")
	b := domain.SyntheticAddress("b")
	r := &domain.Rebalance{
		IndexID:   3,
		Timestamp: 1700000000,
		Weights:   []domain.TokenWeight{{Token: b, Weight: 5000}, {Token: a, Weight: 5000}},
		Prices:    map[string]float64{a.Hex(): 10, b.Hex(): 20},
		Price:     15,
		CreatedAt: 1700000005,
	}

	inserted, err := store.InsertIfAbsent(ctx, r)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := *r
	again.Price = 999
	inserted, err = store.InsertIfAbsent(ctx, &again)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := store.Get(ctx, 3, 1700000000)
	require.NoError(t, err)
	assert.Equal(t, r.Weights, got.Weights, "weight order preserved")
	assert.Equal(t, r.Prices, got.Prices)
	assert.InDelta(t, 15.0, got.Price, 1e-9)
}

func TestRebalanceStore_GetByIndexOrdered(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRebalanceStore(pool)

	for _, ts := range []int64{1700172800, 1700000000, 1700086400} {
		_, err := store.InsertIfAbsent(ctx, &domain.Rebalance{IndexID: 1, Timestamp: ts, Price: float64(ts % 1000)})
		require.NoError(t, err)
	}

	got, err := store.GetByIndex(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1700000000), got[0].Timestamp)
	assert.Equal(t, int64(1700172800), got[2].Timestamp)

	_, err = store.Get(ctx, 1, 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
