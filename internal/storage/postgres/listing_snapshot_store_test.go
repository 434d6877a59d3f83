package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-index-lab/internal/domain"
)

func TestListingSnapshotStore_InsertAndGetByDay(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewListingSnapshotStore(pool)

	day := int64(1700006400)
	rows := []*domain.ListingSnapshot{
		{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT", Status: "TRADING", FetchedAt: day},
		{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", Status: "TRADING", FetchedAt: day},
	}

	n, err := store.InsertBulk(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.InsertBulk(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := store.GetByDay(ctx, day)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "BTCUSDT", got[0].Symbol)

	empty, err := store.GetByDay(ctx, day+86400)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
