package history

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/logging"
	"crypto-index-lab/internal/reporting"
	"crypto-index-lab/internal/storage"
)

// ErrNoHistoryStore is returned by Rebuild when the service has no history store.
var ErrNoHistoryStore = errors.New("history store not configured")

// ServiceOptions for creating a Service.
type ServiceOptions struct {
	Reconstructor *Reconstructor
	History       storage.HistoryStore   // optional, required by Rebuild
	Rebalances    storage.RebalanceStore // optional, required by Export
	Logger        *zerolog.Logger
}

// Service combines reconstruction with history persistence and export.
type Service struct {
	reconstructor *Reconstructor
	history       storage.HistoryStore
	rebalances    storage.RebalanceStore
	logger        zerolog.Logger
}

// NewService creates a Service.
func NewService(opts ServiceOptions) *Service {
	return &Service{
		reconstructor: opts.Reconstructor,
		history:       opts.History,
		rebalances:    opts.Rebalances,
		logger:        logging.OrNop(opts.Logger).With().Str("component", "history").Logger(),
	}
}

// Reconstruct returns the on-chain history of an index without storing it.
func (s *Service) Reconstruct(ctx context.Context, indexID uint64) ([]*domain.HistoryPoint, error) {
	return s.reconstructor.Reconstruct(ctx, indexID)
}

// Rebuild reconstructs the history of an index and replaces its stored series.
func (s *Service) Rebuild(ctx context.Context, indexID uint64) ([]*domain.HistoryPoint, error) {
	if s.history == nil {
		return nil, ErrNoHistoryStore
	}

	points, err := s.reconstructor.Reconstruct(ctx, indexID)
	if err != nil {
		return nil, err
	}
	if err := s.history.ReplaceSeries(ctx, indexID, points); err != nil {
		return nil, fmt.Errorf("replace history of index %d: %w", indexID, err)
	}

	s.logger.Info().
		Uint64("index_id", indexID).
		Int("points", len(points)).
		Msg("history rebuilt")
	return points, nil
}

// Export writes the rebalance table of an index as CSV and returns the row count.
func (s *Service) Export(ctx context.Context, indexID uint64, w io.Writer) (int, error) {
	if s.rebalances == nil {
		return 0, errors.New("rebalance store not configured")
	}

	rebalances, err := s.rebalances.GetByIndex(ctx, indexID)
	if err != nil {
		return 0, fmt.Errorf("load rebalances of index %d: %w", indexID, err)
	}
	if err := reporting.WriteRebalanceCSV(w, reporting.RebalanceRows(rebalances)); err != nil {
		return 0, err
	}
	return len(rebalances), nil
}
