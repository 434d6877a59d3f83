package recorder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/logging"
	"crypto-index-lab/internal/marketdata"
	"crypto-index-lab/internal/storage"
)

// ListingSnapshotter records the daily listing status of exchange pairs.
type ListingSnapshotter struct {
	exchange marketdata.Exchange
	store    storage.ListingSnapshotStore
	logger   zerolog.Logger
}

// NewListingSnapshotter creates a ListingSnapshotter.
func NewListingSnapshotter(exchange marketdata.Exchange, store storage.ListingSnapshotStore, logger *zerolog.Logger) *ListingSnapshotter {
	return &ListingSnapshotter{
		exchange: exchange,
		store:    store,
		logger:   logging.OrNop(logger).With().Str("component", "listings").Logger(),
	}
}

// DayStart truncates t to its UTC midnight in unix seconds.
func DayStart(t time.Time) int64 {
	return t.UTC().Truncate(24 * time.Hour).Unix()
}

// Snapshot stores every pair's status under the UTC day of now.
// Re-running on the same day inserts nothing new.
func (l *ListingSnapshotter) Snapshot(ctx context.Context, now time.Time) (int, error) {
	pairs, err := l.exchange.ListTradablePairs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pairs: %w", err)
	}

	day := DayStart(now)
	rows := make([]*domain.ListingSnapshot, len(pairs))
	for i, p := range pairs {
		rows[i] = &domain.ListingSnapshot{
			Symbol:     p.Symbol,
			BaseAsset:  p.BaseAsset,
			QuoteAsset: p.QuoteAsset,
			Status:     p.Status,
			FetchedAt:  day,
		}
	}

	n, err := l.store.InsertBulk(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("store listing snapshot: %w", err)
	}
	l.logger.Info().Int("pairs", len(pairs)).Int("inserted", n).Time("day", time.Unix(day, 0).UTC()).Msg("listing snapshot stored")
	return n, nil
}

// Diff compares the stored snapshots of two days.
func (l *ListingSnapshotter) Diff(ctx context.Context, prevDay, day time.Time) (*domain.ListingDiff, error) {
	prev, err := l.store.GetByDay(ctx, DayStart(prevDay))
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", prevDay.UTC().Format("2006-01-02"), err)
	}
	cur, err := l.store.GetByDay(ctx, DayStart(day))
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", day.UTC().Format("2006-01-02"), err)
	}
	diff := DiffSnapshots(prev, cur)
	return &diff, nil
}

// DiffSnapshots returns symbols trading in cur but not prev (listed) and
// trading in prev but not cur (delisted), both sorted.
func DiffSnapshots(prev, cur []*domain.ListingSnapshot) domain.ListingDiff {
	before := tradingSymbols(prev)
	after := tradingSymbols(cur)

	diff := domain.ListingDiff{Listed: []string{}, Delisted: []string{}}
	for s := range after {
		if _, ok := before[s]; !ok {
			diff.Listed = append(diff.Listed, s)
		}
	}
	for s := range before {
		if _, ok := after[s]; !ok {
			diff.Delisted = append(diff.Delisted, s)
		}
	}
	sort.Strings(diff.Listed)
	sort.Strings(diff.Delisted)
	return diff
}

func tradingSymbols(rows []*domain.ListingSnapshot) map[string]struct{} {
	set := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r.Status == domain.ListingStatusTrading {
			set[r.Symbol] = struct{}{}
		}
	}
	return set
}
