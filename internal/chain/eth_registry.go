package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/logging"
	"crypto-index-lab/internal/observability"
)

const weightsSetEvent = "CuratorWeightsSet"

// Backend is the JSON-RPC surface needed by EthRegistry. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// EthRegistryOptions configures an EthRegistry.
type EthRegistryOptions struct {
	Address common.Address
	Backend Backend
	Auth    *bind.TransactOpts // nil makes the registry read-only
	Fund    *Artifact          // required for DeployFund
	Logger  *zerolog.Logger
}

// EthRegistry implements Registry on an EVM chain using go-ethereum bindings.
type EthRegistry struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
	backend  Backend
	auth     *bind.TransactOpts
	fund     *Artifact
	logger   zerolog.Logger
}

var _ Registry = (*EthRegistry)(nil)

// NewEthRegistry binds the registry contract at opts.Address.
func NewEthRegistry(opts EthRegistryOptions) (*EthRegistry, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("registry backend is required")
	}
	parsed, err := abi.JSON(strings.NewReader(RegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	return &EthRegistry{
		address:  opts.Address,
		abi:      parsed,
		contract: bind.NewBoundContract(opts.Address, parsed, opts.Backend, opts.Backend, opts.Backend),
		backend:  opts.Backend,
		auth:     opts.Auth,
		fund:     opts.Fund,
		logger:   logging.OrNop(opts.Logger).With().Str("component", "registry").Str("registry", opts.Address.Hex()).Logger(),
	}, nil
}

// GetIndexInfo implements Registry.
func (r *EthRegistry) GetIndexInfo(ctx context.Context, indexID uint64) (*domain.IndexRecord, error) {
	start := time.Now()
	var out []interface{}
	err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getIndexInfo", new(big.Int).SetUint64(indexID))
	observability.RecordChainCall("getIndexInfo", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: getIndexInfo(%d): %v", domain.ErrChainQuery, indexID, err)
	}
	if len(out) != 7 {
		return nil, fmt.Errorf("%w: getIndexInfo(%d) returned %d values", domain.ErrChainQuery, indexID, len(out))
	}

	rec := &domain.IndexRecord{
		IndexID: indexID,
		Name:    *abi.ConvertType(out[0], new(string)).(*string),
		Ticker:  *abi.ConvertType(out[1], new(string)).(*string),
		Curator: *abi.ConvertType(out[2], new(common.Address)).(*common.Address),
		Fund:    *abi.ConvertType(out[3], new(common.Address)).(*common.Address),
	}
	fee := *abi.ConvertType(out[4], new(*big.Int)).(**big.Int)
	price := *abi.ConvertType(out[5], new(*big.Int)).(**big.Int)
	updated := *abi.ConvertType(out[6], new(*big.Int)).(**big.Int)

	rec.CuratorFee = fee.Uint64()
	rec.LastPrice = FromFixedPoint(price)
	rec.LastWeightUpdate = updated.Int64()
	return rec, nil
}

// DeployFund implements Registry. The fund constructor takes
// (address registry, uint256 indexId, string name, string ticker,
// string custodyId, uint256 curatorFee, address feeReceiver, bytes initialWeights).
func (r *EthRegistry) DeployFund(ctx context.Context, p FundParams) (common.Address, *Receipt, error) {
	if r.fund == nil {
		return common.Address{}, nil, fmt.Errorf("%w: no fund artifact configured", domain.ErrChainWrite)
	}
	opts, err := r.transactOpts(ctx)
	if err != nil {
		return common.Address{}, nil, err
	}

	addr, tx, _, err := bind.DeployContract(opts, r.fund.ABI, r.fund.Bytecode, r.backend,
		r.address,
		new(big.Int).SetUint64(p.IndexID),
		p.Name,
		p.Ticker,
		p.CustodyID,
		new(big.Int).SetUint64(p.CuratorFee),
		p.FeeReceiver,
		p.InitialWeights,
	)
	if err != nil {
		observability.RecordTransaction("deploy", err)
		return common.Address{}, nil, fmt.Errorf("%w: deploy fund: %v", domain.ErrChainWrite, err)
	}
	r.logger.Info().Uint64("index_id", p.IndexID).Str("tx", tx.Hash().Hex()).Str("fund", addr.Hex()).Msg("fund deployment submitted")

	rcpt, err := r.waitMined(ctx, "deploy", tx)
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, rcpt, nil
}

// RegisterIndex implements Registry.
func (r *EthRegistry) RegisterIndex(ctx context.Context, p FundParams, fund common.Address) (*Receipt, error) {
	return r.transact(ctx, "register", "registerIndex",
		new(big.Int).SetUint64(p.IndexID),
		fund,
		p.Name,
		p.Ticker,
		p.CustodyID,
		new(big.Int).SetUint64(p.CuratorFee),
		p.FeeReceiver,
	)
}

// SetCuratorWeights implements Registry.
func (r *EthRegistry) SetCuratorWeights(ctx context.Context, u WeightUpdate) (*Receipt, error) {
	if u.Price == nil {
		return nil, fmt.Errorf("%w: missing price", domain.ErrChainWrite)
	}
	return r.transact(ctx, "publish", "setCuratorWeights",
		new(big.Int).SetUint64(u.IndexID),
		big.NewInt(u.Timestamp),
		u.Payload,
		u.Price,
		u.ChainSelector,
	)
}

// eventFields mirrors the CuratorWeightsSet event for UnpackLog.
type eventFields struct {
	IndexId       *big.Int // matches the abi field name
	Timestamp     *big.Int
	Weights       []byte
	Price         *big.Int
	ChainSelector uint64
}

// WeightEvents implements Registry. Logs that cannot be unpacked are skipped.
func (r *EthRegistry) WeightEvents(ctx context.Context, indexID uint64, fromBlock uint64) ([]WeightEvent, error) {
	ev, ok := r.abi.Events[weightsSetEvent]
	if !ok {
		return nil, fmt.Errorf("%w: registry abi has no %s event", domain.ErrChainQuery, weightsSetEvent)
	}

	start := time.Now()
	logs, err := r.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{r.address},
		Topics: [][]common.Hash{
			{ev.ID},
			{common.BigToHash(new(big.Int).SetUint64(indexID))},
		},
	})
	observability.RecordChainCall("eth_getLogs", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: filter %s logs: %v", domain.ErrChainQuery, weightsSetEvent, err)
	}

	out := make([]WeightEvent, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		var f eventFields
		if err := r.contract.UnpackLog(&f, weightsSetEvent, lg); err != nil {
			r.logger.Warn().Err(err).Str("tx", lg.TxHash.Hex()).Uint("log_index", lg.Index).Msg("skipping unreadable weight event")
			observability.RecordHistoryEvents(0, 1)
			continue
		}
		out = append(out, WeightEvent{
			IndexID:       indexID,
			Timestamp:     f.Timestamp.Int64(),
			Payload:       f.Weights,
			Price:         f.Price,
			ChainSelector: f.ChainSelector,
			BlockNumber:   lg.BlockNumber,
			TxHash:        lg.TxHash,
			LogIndex:      lg.Index,
		})
	}
	return out, nil
}

func (r *EthRegistry) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if r.auth == nil {
		return nil, fmt.Errorf("%w: registry is read-only, no signing key configured", domain.ErrChainWrite)
	}
	opts := *r.auth
	opts.Context = ctx
	return &opts, nil
}

func (r *EthRegistry) transact(ctx context.Context, kind, method string, args ...interface{}) (*Receipt, error) {
	opts, err := r.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := r.contract.Transact(opts, method, args...)
	if err != nil {
		observability.RecordTransaction(kind, err)
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrChainWrite, method, err)
	}
	r.logger.Info().Str("method", method).Str("tx", tx.Hash().Hex()).Msg("transaction submitted")
	return r.waitMined(ctx, kind, tx)
}

func (r *EthRegistry) waitMined(ctx context.Context, kind string, tx *types.Transaction) (*Receipt, error) {
	start := time.Now()
	rcpt, err := bind.WaitMined(ctx, r.backend, tx)
	observability.RecordChainCall("wait_mined", time.Since(start).Seconds())
	if err != nil {
		observability.RecordTransaction(kind, err)
		return nil, fmt.Errorf("%w: waiting for %s: %v", domain.ErrChainWrite, tx.Hash().Hex(), err)
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		err := fmt.Errorf("%w: %s reverted in block %d", domain.ErrChainWrite, tx.Hash().Hex(), rcpt.BlockNumber)
		observability.RecordTransaction(kind, err)
		return nil, err
	}
	observability.RecordTransaction(kind, nil)
	r.logger.Info().Str("kind", kind).Str("tx", rcpt.TxHash.Hex()).Uint64("block", rcpt.BlockNumber.Uint64()).Msg("transaction confirmed")
	return &Receipt{TxHash: rcpt.TxHash, BlockNumber: rcpt.BlockNumber.Uint64(), GasUsed: rcpt.GasUsed}, nil
}
