package chain

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"crypto-index-lab/internal/domain"
)

// PriceDecimals is the fixed-point scale of prices sent to the registry.
const PriceDecimals = 6

var weightsPayloadArgs = mustArguments("address[]", "uint256[]")

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("abi type %s: %v", t, err))
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

// EncodeWeightsPayload ABI-encodes a weight set as (address[] tokens, uint256[] weights).
func EncodeWeightsPayload(weights []domain.TokenWeight) ([]byte, error) {
	tokens := make([]common.Address, len(weights))
	values := make([]*big.Int, len(weights))
	for i, w := range weights {
		tokens[i] = w.Token
		values[i] = new(big.Int).SetUint64(w.Weight)
	}
	data, err := weightsPayloadArgs.Pack(tokens, values)
	if err != nil {
		return nil, fmt.Errorf("encode weights payload: %w", err)
	}
	return data, nil
}

// DecodeWeightsPayload is the inverse of EncodeWeightsPayload.
// Malformed input returns domain.ErrDecode.
func DecodeWeightsPayload(data []byte) ([]domain.TokenWeight, error) {
	values, err := weightsPayloadArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: weights payload: %v", domain.ErrDecode, err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("%w: weights payload has %d fields", domain.ErrDecode, len(values))
	}

	tokens, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: weights payload tokens have type %T", domain.ErrDecode, values[0])
	}
	amounts, ok := values[1].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: weights payload weights have type %T", domain.ErrDecode, values[1])
	}
	if len(tokens) != len(amounts) {
		return nil, fmt.Errorf("%w: %d tokens but %d weights", domain.ErrDecode, len(tokens), len(amounts))
	}

	out := make([]domain.TokenWeight, len(tokens))
	for i := range tokens {
		if !amounts[i].IsUint64() {
			return nil, fmt.Errorf("%w: weight %d out of range", domain.ErrDecode, i)
		}
		out[i] = domain.TokenWeight{Token: tokens[i], Weight: amounts[i].Uint64()}
	}
	return out, nil
}

// ToFixedPoint scales a price by 1e6 and truncates toward zero.
func ToFixedPoint(price float64) (*big.Int, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return nil, fmt.Errorf("%w: price %v not representable", domain.ErrInvalidWeights, price)
	}
	return decimal.NewFromFloat(price).Shift(PriceDecimals).Truncate(0).BigInt(), nil
}

// FromFixedPoint converts a 1e6-scaled integer price back to a float.
func FromFixedPoint(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v, -PriceDecimals).InexactFloat64()
}
