package weighting

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-index-lab/internal/domain"
)

func tokens(prices ...float64) []domain.Token {
	out := make([]domain.Token, len(prices))
	for i, p := range prices {
		id := fmt.Sprintf("tok-%d", i)
		out[i] = domain.Token{ID: id, Symbol: id, Address: domain.SyntheticAddress(id), Price: p}
	}
	return out
}

func TestEqualWeights_SumIsExact(t *testing.T) {
	for n := 1; n <= 250; n++ {
		w := EqualWeights(n)
		require.Len(t, w, n)

		var sum uint64
		for _, v := range w {
			sum += v
		}
		assert.Equal(t, uint64(domain.TotalBasisPoints), sum, "n=%d", n)
	}
}

func TestEqualWeights_RemainderToFirst(t *testing.T) {
	assert.Equal(t, []uint64{3334, 3333, 3333}, EqualWeights(3))
	assert.Equal(t, []uint64{1432, 1428, 1428, 1428, 1428, 1428, 1428}, EqualWeights(7))
	assert.Nil(t, EqualWeights(0))
}

func TestAllocate_Equal(t *testing.T) {
	alloc, err := Allocate(tokens(100, 50, 10), domain.SchemeEqual, 0)
	require.NoError(t, err)

	require.Len(t, alloc.Constituents, 3)
	assert.Equal(t, uint64(3334), alloc.Constituents[0].Weight)
	assert.Equal(t, "tok-0", alloc.Constituents[0].Token.ID)
	// 100*0.3334 + 50*0.3333 + 10*0.3333
	assert.InDelta(t, 53.338, alloc.AggregatePrice, 1e-9)
	assert.NoError(t, Validate(alloc.Weights(), domain.SchemeEqual))
}

func TestAllocate_FixedUnit(t *testing.T) {
	alloc, err := Allocate(tokens(10, 20, 30, 40), domain.SchemeFixedUnit, 100)
	require.NoError(t, err)

	for _, c := range alloc.Constituents {
		assert.Equal(t, uint64(100), c.Weight)
	}
	assert.Equal(t, uint64(400), domain.SumWeights(alloc.Weights()))
	assert.InDelta(t, 25.0, alloc.AggregatePrice, 1e-9)
	assert.NoError(t, Validate(alloc.Weights(), domain.SchemeFixedUnit))
}

func TestAllocate_Empty(t *testing.T) {
	for _, scheme := range []domain.WeightScheme{domain.SchemeEqual, domain.SchemeFixedUnit} {
		alloc, err := Allocate(nil, scheme, 100)
		require.NoError(t, err)
		assert.Empty(t, alloc.Constituents)
		assert.Zero(t, alloc.AggregatePrice)
	}
}

func TestAllocate_InvalidInput(t *testing.T) {
	_, err := Allocate(tokens(1), "cap-weighted", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidWeights)

	_, err = Allocate(tokens(1), domain.SchemeFixedUnit, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidWeights)
}

func TestValidate(t *testing.T) {
	a := domain.SyntheticAddress("a")
	b := domain.SyntheticAddress("b")

	tests := []struct {
		name    string
		weights []domain.TokenWeight
		scheme  domain.WeightScheme
		wantErr bool
	}{
		{"valid equal", []domain.TokenWeight{{Token: a, Weight: 5000}, {Token: b, Weight: 5000}}, domain.SchemeEqual, false},
		{"short sum", []domain.TokenWeight{{Token: a, Weight: 5000}, {Token: b, Weight: 4999}}, domain.SchemeEqual, true},
		{"duplicate", []domain.TokenWeight{{Token: a, Weight: 5000}, {Token: a, Weight: 5000}}, domain.SchemeEqual, true},
		{"empty", nil, domain.SchemeEqual, true},
		{"fixed unit any sum", []domain.TokenWeight{{Token: a, Weight: 1}, {Token: b, Weight: 1}}, domain.SchemeFixedUnit, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.weights, tt.scheme)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidWeights)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
