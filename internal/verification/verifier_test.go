package verification

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/storage/memory"
)

var (
	tokA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokB = common.HexToAddress("0x000000000000000000000000000000000000000b")
)

func weights(pairs ...interface{}) []domain.TokenWeight {
	out := make([]domain.TokenWeight, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, domain.TokenWeight{Token: pairs[i].(common.Address), Weight: uint64(pairs[i+1].(int))})
	}
	return out
}

func TestCompareRebalance_ExactMatch(t *testing.T) {
	local := &domain.Rebalance{Timestamp: 100, Price: 12.3456789, Weights: weights(tokA, 5000, tokB, 5000)}
	onchain := &domain.HistoryPoint{Timestamp: 100, Price: 12.345678, Weights: weights(tokA, 5000, tokB, 5000)}

	if divs := CompareRebalance(local, onchain); len(divs) != 0 {
		t.Errorf("expected no divergences, got %+v", divs)
	}
}

func TestCompareRebalance_Divergences(t *testing.T) {
	local := &domain.Rebalance{Timestamp: 100, Price: 10, Weights: weights(tokA, 6000, tokB, 4000)}
	onchain := &domain.HistoryPoint{Timestamp: 100, Price: 11, Weights: weights(tokB, 6000, tokB, 4000)}

	divs := CompareRebalance(local, onchain)
	fields := make(map[string]bool)
	for _, d := range divs {
		fields[d.Field] = true
	}
	for _, want := range []string{"Price", "Weights[0].Token"} {
		if !fields[want] {
			t.Errorf("expected divergence on %s, got %+v", want, divs)
		}
	}
	if fields["Weights[0].Weight"] || fields["Weights[1].Weight"] {
		t.Errorf("unexpected weight divergence: %+v", divs)
	}
}

func TestCompareRebalance_LengthMismatch(t *testing.T) {
	local := &domain.Rebalance{Price: 1, Weights: weights(tokA, 10000)}
	onchain := &domain.HistoryPoint{Price: 1, Weights: weights(tokA, 5000, tokB, 5000)}

	divs := CompareRebalance(local, onchain)
	if len(divs) != 1 || divs[0].Field != "Weights.Len" {
		t.Errorf("expected a single length divergence, got %+v", divs)
	}
}

func TestReconcile(t *testing.T) {
	local := []*domain.Rebalance{
		{Timestamp: 100, Price: 1, Weights: weights(tokA, 10000)},
		{Timestamp: 200, Price: 2, Weights: weights(tokA, 10000)},
		{Timestamp: 300, Price: 3, Weights: weights(tokA, 10000)},
	}
	onchain := []*domain.HistoryPoint{
		{Timestamp: 100, Price: 1, Weights: weights(tokA, 10000)},
		{Timestamp: 200, Price: 2.5, Weights: weights(tokA, 10000)},
		{Timestamp: 250, Price: 2, Weights: weights(tokA, 10000)},
	}

	report := Reconcile(local, onchain)

	if report.Matched != 1 || report.Divergent != 1 || report.MissingOnChain != 1 || report.MissingLocally != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if report.Consistent() {
		t.Error("expected inconsistent report")
	}

	want := []Status{StatusMatch, StatusDivergent, StatusMissingLocally, StatusMissingOnChain}
	for i, s := range want {
		if report.Results[i].Status != s {
			t.Errorf("result %d: expected %s, got %s", i, s, report.Results[i].Status)
		}
	}
}

type fakeHistory struct {
	points []*domain.HistoryPoint
	err    error
}

func (f *fakeHistory) Reconstruct(context.Context, uint64) ([]*domain.HistoryPoint, error) {
	return f.points, f.err
}

func TestVerifier_VerifyIndex(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRebalanceStore()
	if _, err := store.InsertIfAbsent(ctx, &domain.Rebalance{IndexID: 7, Timestamp: 100, Price: 50, Weights: weights(tokA, 10000)}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	v := NewVerifier(&fakeHistory{points: []*domain.HistoryPoint{
		{IndexID: 7, Timestamp: 100, Price: 50, Weights: weights(tokA, 10000)},
	}}, store)

	report, err := v.VerifyIndex(ctx, 7)
	if err != nil {
		t.Fatalf("VerifyIndex failed: %v", err)
	}
	if report.IndexID != 7 || !report.Consistent() || report.Matched != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestVerifier_HistoryError(t *testing.T) {
	wantErr := errors.New("rpc down")
	v := NewVerifier(&fakeHistory{err: wantErr}, memory.NewRebalanceStore())

	if _, err := v.VerifyIndex(context.Background(), 7); !errors.Is(err, wantErr) {
		t.Fatalf("expected history error, got %v", err)
	}
}
