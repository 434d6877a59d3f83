// Package reporting renders persisted index data for export.
package reporting

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"crypto-index-lab/internal/domain"
)

// RebalanceHeader is the column order of a rebalance export.
var RebalanceHeader = []string{"Timestamp", "Date", "Price", "Weights"}

// RebalanceRow is one exported rebalance event.
type RebalanceRow struct {
	Timestamp int64             // unix seconds
	Price     float64           // aggregate index price
	Weights   map[string]uint64 // token -> weight
}

// RebalanceRows converts stored rebalances into export rows keyed by token address.
func RebalanceRows(rebalances []*domain.Rebalance) []RebalanceRow {
	rows := make([]RebalanceRow, len(rebalances))
	for i, r := range rebalances {
		rows[i] = RebalanceRow{
			Timestamp: r.Timestamp,
			Price:     r.Price,
			Weights:   r.WeightsByAddress(),
		}
	}
	return rows
}

// WriteRebalanceCSV writes rows sorted ascending by timestamp.
// Date is ISO-8601 UTC and Weights is a JSON object, quoted and escaped as CSV requires.
func WriteRebalanceCSV(w io.Writer, rows []RebalanceRow) error {
	sorted := append([]RebalanceRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(RebalanceHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range sorted {
		weights, err := json.Marshal(r.Weights)
		if err != nil {
			return fmt.Errorf("marshal weights at %d: %w", r.Timestamp, err)
		}
		record := []string{
			strconv.FormatInt(r.Timestamp, 10),
			time.Unix(r.Timestamp, 0).UTC().Format(time.RFC3339),
			strconv.FormatFloat(r.Price, 'f', -1, 64),
			string(weights),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row at %d: %w", r.Timestamp, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// RenderRebalanceCSV renders rows as a CSV string.
func RenderRebalanceCSV(rows []RebalanceRow) (string, error) {
	var sb strings.Builder
	if err := WriteRebalanceCSV(&sb, rows); err != nil {
		return "", err
	}
	return sb.String(), nil
}
