// Package stub provides an in-memory registry for tests and dry runs.
package stub

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"crypto-index-lab/internal/chain"
	"crypto-index-lab/internal/domain"
)

// Curator is the curator address recorded for every registered index.
var Curator = common.HexToAddress("0x00000000000000000000000000000000c0ffee01")

// Registry implements chain.Registry in memory. Forced errors and
// PublishDelay let tests drive failure paths.
type Registry struct {
	mu sync.Mutex

	Records map[uint64]*domain.IndexRecord
	Events  map[uint64][]chain.WeightEvent

	InfoErr     error
	DeployErr   error
	RegisterErr error
	PublishErr  error

	DeployDelay   time.Duration
	RegisterDelay time.Duration
	PublishDelay  time.Duration

	InfoCalls     int
	DeployCalls   int
	RegisterCalls int
	PublishCalls  int

	block uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		Records: make(map[uint64]*domain.IndexRecord),
		Events:  make(map[uint64][]chain.WeightEvent),
		block:   100,
	}
}

var _ chain.Registry = (*Registry)(nil)

// GetIndexInfo implements chain.Registry.
func (r *Registry) GetIndexInfo(_ context.Context, indexID uint64) (*domain.IndexRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.InfoCalls++
	if r.InfoErr != nil {
		return nil, r.InfoErr
	}
	rec, ok := r.Records[indexID]
	if !ok {
		return &domain.IndexRecord{IndexID: indexID}, nil
	}
	cp := *rec
	return &cp, nil
}

// DeployFund implements chain.Registry.
func (r *Registry) DeployFund(ctx context.Context, p chain.FundParams) (common.Address, *chain.Receipt, error) {
	r.mu.Lock()
	r.DeployCalls++
	delay := r.DeployDelay
	r.mu.Unlock()

	if err := wait(ctx, delay); err != nil {
		return common.Address{}, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.DeployErr != nil {
		return common.Address{}, nil, r.DeployErr
	}
	addr := crypto.CreateAddress(Curator, uint64(r.DeployCalls))
	return addr, r.receipt(fmt.Sprintf("deploy-%d-%d", p.IndexID, r.DeployCalls)), nil
}

// RegisterIndex implements chain.Registry.
func (r *Registry) RegisterIndex(ctx context.Context, p chain.FundParams, fund common.Address) (*chain.Receipt, error) {
	r.mu.Lock()
	r.RegisterCalls++
	delay := r.RegisterDelay
	r.mu.Unlock()

	if err := wait(ctx, delay); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.RegisterErr != nil {
		return nil, r.RegisterErr
	}
	r.Records[p.IndexID] = &domain.IndexRecord{
		IndexID:    p.IndexID,
		Name:       p.Name,
		Ticker:     p.Ticker,
		Curator:    Curator,
		Fund:       fund,
		CuratorFee: p.CuratorFee,
	}
	return r.receipt(fmt.Sprintf("register-%d", p.IndexID)), nil
}

// SetCuratorWeights implements chain.Registry.
func (r *Registry) SetCuratorWeights(ctx context.Context, u chain.WeightUpdate) (*chain.Receipt, error) {
	r.mu.Lock()
	r.PublishCalls++
	delay := r.PublishDelay
	r.mu.Unlock()

	if err := wait(ctx, delay); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.PublishErr != nil {
		return nil, r.PublishErr
	}
	rec, ok := r.Records[u.IndexID]
	if !ok {
		return nil, fmt.Errorf("%w: index %d not registered", domain.ErrChainWrite, u.IndexID)
	}
	rec.LastWeightUpdate = u.Timestamp
	rec.LastPrice = chain.FromFixedPoint(u.Price)

	rcpt := r.receipt(fmt.Sprintf("weights-%d-%d", u.IndexID, u.Timestamp))
	r.Events[u.IndexID] = append(r.Events[u.IndexID], chain.WeightEvent{
		IndexID:       u.IndexID,
		Timestamp:     u.Timestamp,
		Payload:       append([]byte(nil), u.Payload...),
		Price:         new(big.Int).Set(u.Price),
		ChainSelector: u.ChainSelector,
		BlockNumber:   rcpt.BlockNumber,
		TxHash:        rcpt.TxHash,
	})
	return rcpt, nil
}

// WeightEvents implements chain.Registry.
func (r *Registry) WeightEvents(_ context.Context, indexID uint64, fromBlock uint64) ([]chain.WeightEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.InfoErr != nil {
		return nil, r.InfoErr
	}
	var out []chain.WeightEvent
	for _, ev := range r.Events[indexID] {
		if ev.BlockNumber >= fromBlock {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Register seeds an existing index.
func (r *Registry) Register(rec domain.IndexRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.Curator == (common.Address{}) {
		rec.Curator = Curator
	}
	r.Records[rec.IndexID] = &rec
}

func (r *Registry) receipt(seed string) *chain.Receipt {
	r.block++
	return &chain.Receipt{
		TxHash:      crypto.Keccak256Hash([]byte(seed)),
		BlockNumber: r.block,
		GasUsed:     21000,
	}
}

// wait blocks for d or until ctx is done, simulating a slow transaction.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
