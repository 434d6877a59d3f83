// Package recorder persists composition and rebalance snapshots and daily
// exchange listing snapshots.
package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/logging"
	"crypto-index-lab/internal/storage"
)

// Snapshot is the weighted constituent set of one rebalance cycle.
type Snapshot struct {
	IndexID      uint64
	Timestamp    int64
	Constituents []domain.Constituent
	Price        float64 // aggregate index price
}

// PersistResult reports what a Persist call wrote.
type PersistResult struct {
	CompositionRows int
	// RebalanceInserted is false when (index, timestamp) was already recorded.
	// That is informational only and never a reason to skip the chain publish.
	RebalanceInserted bool
}

// Options for creating a Recorder.
type Options struct {
	Compositions storage.CompositionStore
	Rebalances   storage.RebalanceStore
	Logger       *zerolog.Logger
	Now          func() time.Time
}

// Recorder persists rebalance cycles.
type Recorder struct {
	compositions storage.CompositionStore
	rebalances   storage.RebalanceStore
	logger       zerolog.Logger
	now          func() time.Time
}

// New creates a Recorder.
func New(opts Options) *Recorder {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{
		compositions: opts.Compositions,
		rebalances:   opts.Rebalances,
		logger:       logging.OrNop(opts.Logger).With().Str("component", "recorder").Logger(),
		now:          opts.Now,
	}
}

// Persist appends the composition rows and inserts the rebalance row if absent.
func (r *Recorder) Persist(ctx context.Context, snap Snapshot) (*PersistResult, error) {
	createdAt := r.now().Unix()

	rows := make([]*domain.CompositionRow, len(snap.Constituents))
	prices := make(map[string]float64, len(snap.Constituents))
	for i, c := range snap.Constituents {
		addr := c.Token.Address.Hex()
		rows[i] = &domain.CompositionRow{
			IndexID:      snap.IndexID,
			Timestamp:    snap.Timestamp,
			TokenAddress: addr,
			TokenID:      c.Token.ID,
			Symbol:       c.Token.Symbol,
			Weight:       c.Weight,
			CreatedAt:    createdAt,
		}
		prices[addr] = c.Token.Price
	}

	n, err := r.compositions.InsertBulk(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("persist composition: %w", err)
	}

	inserted, err := r.rebalances.InsertIfAbsent(ctx, &domain.Rebalance{
		IndexID:   snap.IndexID,
		Timestamp: snap.Timestamp,
		Weights:   domain.ToTokenWeights(snap.Constituents),
		Prices:    prices,
		Price:     snap.Price,
		CreatedAt: createdAt,
	})
	if err != nil {
		return nil, fmt.Errorf("persist rebalance: %w", err)
	}

	log := r.logger.With().Uint64("index_id", snap.IndexID).Int64("timestamp", snap.Timestamp).Logger()
	if !inserted {
		log.Info().Msg("rebalance already recorded locally, continuing")
	} else {
		log.Info().Int("composition_rows", n).Float64("price", snap.Price).Msg("rebalance recorded")
	}

	return &PersistResult{CompositionRows: n, RebalanceInserted: inserted}, nil
}
