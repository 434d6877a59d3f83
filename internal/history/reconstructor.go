// Package history rebuilds the price and weight timeline of an index from
// registry weight-update events.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"crypto-index-lab/internal/chain"
	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/logging"
	"crypto-index-lab/internal/observability"
)

// Options for creating a Reconstructor.
type Options struct {
	Registry  chain.Registry
	FromBlock uint64 // first block scanned for weight events
	Logger    *zerolog.Logger
}

// Reconstructor rebuilds index history from on-chain events.
type Reconstructor struct {
	registry  chain.Registry
	fromBlock uint64
	logger    zerolog.Logger
}

// NewReconstructor creates a Reconstructor.
func NewReconstructor(opts Options) *Reconstructor {
	return &Reconstructor{
		registry:  opts.Registry,
		fromBlock: opts.FromBlock,
		logger:    logging.OrNop(opts.Logger).With().Str("component", "history").Logger(),
	}
}

// Reconstruct returns the weight-update history of indexID, strictly ascending
// by timestamp. Events whose payload cannot be decoded are logged and skipped.
// When several decodable events share a timestamp the last one emitted on
// chain wins; an undecodable event never shadows an earlier valid one.
func (r *Reconstructor) Reconstruct(ctx context.Context, indexID uint64) ([]*domain.HistoryPoint, error) {
	events, err := r.registry.WeightEvents(ctx, indexID, r.fromBlock)
	if err != nil {
		if errors.Is(err, domain.ErrChainQuery) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: weight events of index %d: %v", domain.ErrChainQuery, indexID, err)
	}

	events = append([]chain.WeightEvent(nil), events...)
	SortEvents(events)

	points := make([]*domain.HistoryPoint, 0, len(events))
	skipped := 0
	for _, ev := range events {
		weights, err := chain.DecodeWeightsPayload(ev.Payload)
		if err != nil {
			skipped++
			r.logger.Warn().
				Err(err).
				Uint64("index_id", indexID).
				Int64("timestamp", ev.Timestamp).
				Uint64("block", ev.BlockNumber).
				Str("tx_hash", ev.TxHash.Hex()).
				Msg("skipping undecodable weight event")
			continue
		}
		var price float64
		if ev.Price != nil {
			price = chain.FromFixedPoint(ev.Price)
		}
		points = append(points, &domain.HistoryPoint{
			IndexID:       indexID,
			Timestamp:     ev.Timestamp,
			Price:         price,
			Weights:       weights,
			ChainSelector: ev.ChainSelector,
			BlockNumber:   ev.BlockNumber,
			TxHash:        ev.TxHash.Hex(),
		})
	}

	points = dedupeByTimestamp(points)

	observability.RecordHistoryEvents(len(points), skipped)
	r.logger.Debug().
		Uint64("index_id", indexID).
		Int("points", len(points)).
		Int("skipped", skipped).
		Msg("history reconstructed")

	return points, nil
}
