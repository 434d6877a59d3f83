// Package chain reads and writes index state on the on-chain registry and owns
// the deploy-or-update decision of a rebalance cycle.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"crypto-index-lab/internal/domain"
)

// RegistryABI is the registry contract interface used by the engine.
const RegistryABI = `[
  {"type":"function","name":"getIndexInfo","stateMutability":"view",
   "inputs":[{"name":"indexId","type":"uint256"}],
   "outputs":[
     {"name":"name","type":"string"},
     {"name":"ticker","type":"string"},
     {"name":"curator","type":"address"},
     {"name":"fund","type":"address"},
     {"name":"curatorFee","type":"uint256"},
     {"name":"lastPrice","type":"uint256"},
     {"name":"lastWeightUpdate","type":"uint256"}]},
  {"type":"function","name":"registerIndex","stateMutability":"nonpayable",
   "inputs":[
     {"name":"indexId","type":"uint256"},
     {"name":"fund","type":"address"},
     {"name":"name","type":"string"},
     {"name":"ticker","type":"string"},
     {"name":"custodyId","type":"string"},
     {"name":"curatorFee","type":"uint256"},
     {"name":"feeReceiver","type":"address"}],
   "outputs":[]},
  {"type":"function","name":"setCuratorWeights","stateMutability":"nonpayable",
   "inputs":[
     {"name":"indexId","type":"uint256"},
     {"name":"timestamp","type":"uint256"},
     {"name":"weights","type":"bytes"},
     {"name":"price","type":"uint256"},
     {"name":"chainSelector","type":"uint64"}],
   "outputs":[]},
  {"type":"event","name":"CuratorWeightsSet","anonymous":false,
   "inputs":[
     {"name":"indexId","type":"uint256","indexed":true},
     {"name":"timestamp","type":"uint256","indexed":false},
     {"name":"weights","type":"bytes","indexed":false},
     {"name":"price","type":"uint256","indexed":false},
     {"name":"chainSelector","type":"uint64","indexed":false}]}
]`

// Registry is the on-chain registry boundary.
// Write methods block until the transaction is mined.
type Registry interface {
	// GetIndexInfo returns the registry entry of an index.
	// A never-registered index yields a record whose Exists() is false.
	GetIndexInfo(ctx context.Context, indexID uint64) (*domain.IndexRecord, error)

	// DeployFund deploys a fund contract bound to the registry.
	DeployFund(ctx context.Context, params FundParams) (common.Address, *Receipt, error)

	// RegisterIndex registers a deployed fund under an index id.
	RegisterIndex(ctx context.Context, params FundParams, fund common.Address) (*Receipt, error)

	// SetCuratorWeights publishes an encoded weight set.
	SetCuratorWeights(ctx context.Context, update WeightUpdate) (*Receipt, error)

	// WeightEvents returns CuratorWeightsSet logs of one index from fromBlock on.
	WeightEvents(ctx context.Context, indexID uint64, fromBlock uint64) ([]WeightEvent, error)
}

// FundParams are the fixed parameters of a new index fund.
type FundParams struct {
	IndexID        uint64
	Name           string
	Ticker         string
	CustodyID      string
	CuratorFee     uint64
	FeeReceiver    common.Address
	InitialWeights []byte // encoded weights payload
}

// WeightUpdate is one setCuratorWeights call.
type WeightUpdate struct {
	IndexID       uint64
	Timestamp     int64
	Payload       []byte
	Price         *big.Int // fixed point, PriceDecimals
	ChainSelector uint64
}

// Receipt is a confirmed transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// WeightEvent is one raw CuratorWeightsSet log.
type WeightEvent struct {
	IndexID       uint64
	Timestamp     int64
	Payload       []byte
	Price         *big.Int
	ChainSelector uint64
	BlockNumber   uint64
	TxHash        common.Hash
	LogIndex      uint
}
