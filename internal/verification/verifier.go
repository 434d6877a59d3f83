// Package verification reconciles locally recorded rebalances with the
// weight history published on chain.
package verification

import (
	"context"
	"fmt"
	"math"
	"sort"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/storage"
)

// PriceTolerance is the tolerance for price comparisons. On-chain prices are
// truncated to six decimals, so a faithful publish differs by less than 1e-6.
const PriceTolerance = 1e-6

// Status classifies one reconciled timestamp.
type Status string

// Status constants.
const (
	StatusMatch          Status = "MATCH"
	StatusDivergent      Status = "DIVERGENT"
	StatusMissingOnChain Status = "MISSING_ON_CHAIN" // recorded locally, never published
	StatusMissingLocally Status = "MISSING_LOCALLY"  // published, no local record
)

// FieldDivergence represents a mismatch between local and on-chain values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // local value
	Actual   interface{} // on-chain value
}

// Result is the reconciliation of one (index, timestamp).
type Result struct {
	Timestamp   int64
	Status      Status
	Divergences []FieldDivergence
}

// Report contains results for one index.
type Report struct {
	IndexID        uint64
	Matched        int
	Divergent      int
	MissingOnChain int
	MissingLocally int
	Results        []Result // ordered by timestamp
}

// Consistent reports whether every recorded rebalance matches the chain.
func (r *Report) Consistent() bool {
	return r.Divergent == 0 && r.MissingOnChain == 0 && r.MissingLocally == 0
}

// HistoryReader returns the on-chain history of an index.
type HistoryReader interface {
	Reconstruct(ctx context.Context, indexID uint64) ([]*domain.HistoryPoint, error)
}

// Verifier compares the rebalance table with registry history.
type Verifier struct {
	history    HistoryReader
	rebalances storage.RebalanceStore
}

// NewVerifier creates a Verifier.
func NewVerifier(history HistoryReader, rebalances storage.RebalanceStore) *Verifier {
	return &Verifier{history: history, rebalances: rebalances}
}

// VerifyIndex reconciles every timestamp known locally or on chain.
func (v *Verifier) VerifyIndex(ctx context.Context, indexID uint64) (*Report, error) {
	local, err := v.rebalances.GetByIndex(ctx, indexID)
	if err != nil {
		return nil, fmt.Errorf("load rebalances of index %d: %w", indexID, err)
	}
	onchain, err := v.history.Reconstruct(ctx, indexID)
	if err != nil {
		return nil, err
	}
	report := Reconcile(local, onchain)
	report.IndexID = indexID
	return report, nil
}

// Reconcile matches local rebalances and on-chain points by timestamp.
func Reconcile(local []*domain.Rebalance, onchain []*domain.HistoryPoint) *Report {
	byTS := make(map[int64]*domain.Rebalance, len(local))
	for _, r := range local {
		byTS[r.Timestamp] = r
	}
	seen := make(map[int64]struct{}, len(onchain))

	report := &Report{}
	for _, p := range onchain {
		seen[p.Timestamp] = struct{}{}
		r, ok := byTS[p.Timestamp]
		if !ok {
			report.add(Result{Timestamp: p.Timestamp, Status: StatusMissingLocally})
			continue
		}
		divs := CompareRebalance(r, p)
		if len(divs) == 0 {
			report.add(Result{Timestamp: p.Timestamp, Status: StatusMatch})
		} else {
			report.add(Result{Timestamp: p.Timestamp, Status: StatusDivergent, Divergences: divs})
		}
	}
	for _, r := range local {
		if _, ok := seen[r.Timestamp]; !ok {
			report.add(Result{Timestamp: r.Timestamp, Status: StatusMissingOnChain})
		}
	}

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Timestamp < report.Results[j].Timestamp
	})
	return report
}

func (r *Report) add(res Result) {
	switch res.Status {
	case StatusMatch:
		r.Matched++
	case StatusDivergent:
		r.Divergent++
	case StatusMissingOnChain:
		r.MissingOnChain++
	case StatusMissingLocally:
		r.MissingLocally++
	}
	r.Results = append(r.Results, res)
}

// CompareRebalance compares a local rebalance with its on-chain point.
// Weights must match in order; price within PriceTolerance.
func CompareRebalance(local *domain.Rebalance, onchain *domain.HistoryPoint) []FieldDivergence {
	var divergences []FieldDivergence

	if !floatEquals(local.Price, onchain.Price) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Price",
			Expected: local.Price,
			Actual:   onchain.Price,
		})
	}

	if len(local.Weights) != len(onchain.Weights) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Weights.Len",
			Expected: len(local.Weights),
			Actual:   len(onchain.Weights),
		})
		return divergences
	}

	for i := range local.Weights {
		l, c := local.Weights[i], onchain.Weights[i]
		if l.Token != c.Token {
			divergences = append(divergences, FieldDivergence{
				Field:    fmt.Sprintf("Weights[%d].Token", i),
				Expected: l.Token.Hex(),
				Actual:   c.Token.Hex(),
			})
		}
		if l.Weight != c.Weight {
			divergences = append(divergences, FieldDivergence{
				Field:    fmt.Sprintf("Weights[%d].Weight", i),
				Expected: l.Weight,
				Actual:   c.Weight,
			})
		}
	}

	return divergences
}

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < PriceTolerance
}
