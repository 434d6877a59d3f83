package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/storage/memory"
)

func constituents() []domain.Constituent {
	btc := domain.Token{ID: "bitcoin", Symbol: "BTC", Address: domain.SyntheticAddress("bitcoin"), Price: 40000}
	eth := domain.Token{ID: "ethereum", Symbol: "ETH", Address: domain.SyntheticAddress("ethereum"), Price: 2000}
	return []domain.Constituent{{Token: btc, Weight: 5000}, {Token: eth, Weight: 5000}}
}

func newTestRecorder() (*Recorder, *memory.CompositionStore, *memory.RebalanceStore) {
	comps := memory.NewCompositionStore()
	rebs := memory.NewRebalanceStore()
	rec := New(Options{
		Compositions: comps,
		Rebalances:   rebs,
		Now:          func() time.Time { return time.Unix(1700000100, 0) },
	})
	return rec, comps, rebs
}

func TestRecorder_Persist(t *testing.T) {
	rec, comps, rebs := newTestRecorder()
	ctx := context.Background()

	res, err := rec.Persist(ctx, Snapshot{IndexID: 1, Timestamp: 1700000000, Constituents: constituents(), Price: 21000})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CompositionRows)
	assert.True(t, res.RebalanceInserted)

	rows, err := comps.GetByTimestamp(ctx, 1, 1700000000)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "BTC", rows[0].Symbol)
	assert.Equal(t, int64(1700000100), rows[0].CreatedAt)

	r, err := rebs.Get(ctx, 1, 1700000000)
	require.NoError(t, err)
	assert.Equal(t, uint64(10000), domain.SumWeights(r.Weights))
	assert.Equal(t, 40000.0, r.Prices[domain.SyntheticAddress("bitcoin").Hex()])
	assert.Equal(t, 21000.0, r.Price)
}

func TestRecorder_PersistTwiceIsIdempotent(t *testing.T) {
	rec, _, rebs := newTestRecorder()
	ctx := context.Background()
	snap := Snapshot{IndexID: 1, Timestamp: 1700000000, Constituents: constituents(), Price: 21000}

	_, err := rec.Persist(ctx, snap)
	require.NoError(t, err)

	res, err := rec.Persist(ctx, snap)
	require.NoError(t, err)
	assert.False(t, res.RebalanceInserted)
	assert.Zero(t, res.CompositionRows)

	all, err := rebs.GetByIndex(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
