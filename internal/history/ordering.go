package history

import (
	"sort"

	"crypto-index-lab/internal/chain"
	"crypto-index-lab/internal/domain"
)

// SortEvents orders events by (timestamp ASC, block ASC, log_index ASC).
// Block and log index break ties between events carrying the same timestamp.
func SortEvents(events []chain.WeightEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareEvents(&events[i], &events[j]) < 0
	})
}

// compareEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareEvents(a, b *chain.WeightEvent) int {
	if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	if a.BlockNumber != b.BlockNumber {
		if a.BlockNumber < b.BlockNumber {
			return -1
		}
		return 1
	}
	if a.LogIndex != b.LogIndex {
		if a.LogIndex < b.LogIndex {
			return -1
		}
		return 1
	}
	return 0
}

// dedupeByTimestamp keeps the last point of every timestamp run.
// points must come from events sorted by SortEvents, so the kept point is
// the latest decodable one emitted on chain for that timestamp.
func dedupeByTimestamp(points []*domain.HistoryPoint) []*domain.HistoryPoint {
	if len(points) == 0 {
		return points
	}
	out := points[:0]
	for i := range points {
		if i+1 < len(points) && points[i+1].Timestamp == points[i].Timestamp {
			continue
		}
		out = append(out, points[i])
	}
	return out
}
