package chain

import (
	"fmt"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-index-lab/internal/domain"
)

func weightSet(n int) []domain.TokenWeight {
	out := make([]domain.TokenWeight, n)
	for i := range out {
		out[i] = domain.TokenWeight{
			Token:  domain.SyntheticAddress(fmt.Sprintf("token-%d", i)),
			Weight: uint64(i*37 + 1),
		}
	}
	return out
}

func TestWeightsPayload_RoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 10, 100} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			in := weightSet(n)

			data, err := EncodeWeightsPayload(in)
			require.NoError(t, err)

			out, err := DecodeWeightsPayload(data)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestWeightsPayload_LargeWeight(t *testing.T) {
	in := []domain.TokenWeight{{Token: domain.SyntheticAddress("x"), Weight: math.MaxUint64}}

	data, err := EncodeWeightsPayload(in)
	require.NoError(t, err)
	out, err := DecodeWeightsPayload(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeWeightsPayload_Malformed(t *testing.T) {
	valid, err := EncodeWeightsPayload(weightSet(3))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0x01, 0x02, 0x03}},
		{"truncated", valid[:len(valid)-32]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeWeightsPayload(tt.data)
			assert.ErrorIs(t, err, domain.ErrDecode)
		})
	}
}

func TestDecodeWeightsPayload_LengthMismatch(t *testing.T) {
	a := domain.SyntheticAddress("a")
	data, err := weightsPayloadArgs.Pack([]common.Address{a, a}, []*big.Int{big.NewInt(1)})
	require.NoError(t, err)

	_, err = DecodeWeightsPayload(data)
	assert.ErrorIs(t, err, domain.ErrDecode)
}

func TestToFixedPoint_Truncates(t *testing.T) {
	tests := []struct {
		price float64
		want  int64
	}{
		{0, 0},
		{1, 1_000_000},
		{52.5, 52_500_000},
		{0.1234567, 123_456},
		{1234.9999999, 1_234_999_999},
	}
	for _, tt := range tests {
		got, err := ToFixedPoint(tt.price)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.Int64(), "price %v", tt.price)
	}
}

func TestToFixedPoint_Invalid(t *testing.T) {
	for _, p := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := ToFixedPoint(p)
		assert.Error(t, err)
	}
}

func TestFromFixedPoint(t *testing.T) {
	assert.Equal(t, 52.5, FromFixedPoint(big.NewInt(52_500_000)))
	assert.Equal(t, 0.000001, FromFixedPoint(big.NewInt(1)))
	assert.Zero(t, FromFixedPoint(nil))
}
