// Package orchestrator drives rebalance cycles end to end.
// It coordinates: selection → allocation → persistence → chain sync → notification
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crypto-index-lab/internal/chain"
	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/eligibility"
	"crypto-index-lab/internal/lock"
	"crypto-index-lab/internal/logging"
	"crypto-index-lab/internal/marketdata"
	"crypto-index-lab/internal/notify"
	"crypto-index-lab/internal/observability"
	"crypto-index-lab/internal/recorder"
	"crypto-index-lab/internal/retry"
	"crypto-index-lab/internal/storage"
	"crypto-index-lab/internal/storage/memory"
	"crypto-index-lab/internal/weighting"
)

// DefaultHistoricAfter is how far in the past a cycle timestamp must lie
// before constituents are re-priced from historic quotes.
const DefaultHistoricAfter = 24 * time.Hour

// Cycle outcomes reported to metrics.
const (
	OutcomeConfirmed        = "confirmed"
	OutcomeAlreadyPublished = "already_published"
	OutcomeHeld             = "held"
	OutcomeFailed           = "failed"
)

// Options for creating Orchestrator.
type Options struct {
	Selector *eligibility.Selector
	Prices   marketdata.PriceSource // historic re-pricing
	Recorder *recorder.Recorder
	Chains   *chain.Clients
	Locker   lock.Locker
	Notifier notify.Notifier

	// PendingFunds remembers funds whose registration failed, across restarts
	// when backed by a database. Defaults to an in-memory store.
	PendingFunds storage.PendingFundStore

	PublishTimeout time.Duration
	DeployTimeout  time.Duration
	PricePolicy    retry.Policy
	HistoricAfter  time.Duration

	Logger     *zerolog.Logger
	Now        func() time.Time
	NewCycleID func() string
}

// Orchestrator runs rebalance cycles.
type Orchestrator struct {
	selector *eligibility.Selector
	prices   marketdata.PriceSource
	recorder *recorder.Recorder
	chains   *chain.Clients
	locker   lock.Locker
	notifier notify.Notifier
	pending  storage.PendingFundStore

	publishTimeout time.Duration
	deployTimeout  time.Duration
	pricePolicy    retry.Policy
	historicAfter  time.Duration

	logger     zerolog.Logger
	now        func() time.Time
	newCycleID func() string
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Locker == nil {
		opts.Locker = lock.NewMemory()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.PendingFunds == nil {
		opts.PendingFunds = memory.NewPendingFundStore()
	}
	if opts.HistoricAfter <= 0 {
		opts.HistoricAfter = DefaultHistoricAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewCycleID == nil {
		opts.NewCycleID = uuid.NewString
	}
	return &Orchestrator{
		selector:       opts.Selector,
		prices:         opts.Prices,
		recorder:       opts.Recorder,
		chains:         opts.Chains,
		locker:         opts.Locker,
		notifier:       opts.Notifier,
		pending:        opts.PendingFunds,
		publishTimeout: opts.PublishTimeout,
		deployTimeout:  opts.DeployTimeout,
		pricePolicy:    opts.PricePolicy,
		historicAfter:  opts.HistoricAfter,
		logger:         logging.OrNop(opts.Logger).With().Str("component", "orchestrator").Logger(),
		now:            opts.Now,
		newCycleID:     opts.NewCycleID,
	}
}

// CycleResult contains results from one rebalance cycle.
type CycleResult struct {
	CycleID    string
	IndexID    uint64
	Timestamp  int64
	Selection  *eligibility.Selection
	Allocation *weighting.Allocation
	Persisted  *recorder.PersistResult
	Sync       *chain.SyncResult
}

// Outcome summarizes the result for metrics and logs.
func (r *CycleResult) Outcome() string {
	switch {
	case r == nil || r.Sync == nil || r.Sync.State != chain.StateConfirmed:
		return OutcomeFailed
	case r.Sync.AlreadyPublished:
		return OutcomeAlreadyPublished
	default:
		return OutcomeConfirmed
	}
}

// RunCycle executes one rebalance cycle for def at the given time.
// Phases:
//  1. Claim the index (lock.ErrHeld if another cycle runs it)
//  2. Select constituents
//  3. Re-price when the cycle time is historic, then allocate weights
//  4. Persist composition and rebalance snapshot
//  5. Sync with the registry (existence check, deploy or publish)
//  6. Notify
//
// The returned result is non-nil whenever the claim was acquired and
// carries whatever the cycle reached before an error.
func (o *Orchestrator) RunCycle(ctx context.Context, def domain.IndexDefinition, at time.Time) (*CycleResult, error) {
	start := o.now()
	res := &CycleResult{
		CycleID:   o.newCycleID(),
		IndexID:   def.IndexID,
		Timestamp: at.Unix(),
	}
	log := o.logger.With().
		Str("cycle_id", res.CycleID).
		Uint64("index_id", def.IndexID).
		Int64("timestamp", res.Timestamp).
		Logger()

	// Phase 1: claim
	release, err := o.locker.Acquire(ctx, def.IndexID)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			log.Warn().Msg("index claimed by another cycle, not starting")
			observability.RecordCycle(def.IndexID, OutcomeHeld, 0)
		}
		return nil, err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			log.Warn().Err(err).Msg("release index claim")
		}
	}()

	err = o.run(ctx, def, at, res, log)
	outcome := res.Outcome()
	if err != nil {
		outcome = OutcomeFailed
	}
	observability.RecordCycle(def.IndexID, outcome, o.now().Sub(start).Seconds())

	if err != nil {
		log.Error().Err(err).Bool("retryable", domain.IsRetryable(err)).Msg("rebalance cycle failed")
		return res, err
	}

	observability.RecordCycleConfirmed(def.IndexID, res.Timestamp)
	log.Info().
		Str("outcome", outcome).
		Int("constituents", len(res.Allocation.Constituents)).
		Float64("price", res.Allocation.AggregatePrice).
		Msg("rebalance cycle completed")

	o.notify(ctx, res, log)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, def domain.IndexDefinition, at time.Time, res *CycleResult, log zerolog.Logger) error {
	// Phase 2: selection
	sel, err := o.selector.SelectConstituents(ctx, eligibility.RequestFor(def))
	if err != nil {
		return fmt.Errorf("select constituents: %w", err)
	}
	res.Selection = sel
	observability.RecordSelection(def.IndexID, len(sel.Tokens), sel.Shortfall)
	if len(sel.Tokens) == 0 {
		return fmt.Errorf("%w: no eligible constituents for index %d", domain.ErrInvalidWeights, def.IndexID)
	}

	// Phase 3: pricing and allocation
	tokens := sel.Tokens
	if o.isHistoric(at) {
		tokens, err = o.historicPrices(ctx, tokens, at)
		if err != nil {
			return err
		}
		log.Info().Time("at", at).Msg("constituents re-priced from historic quotes")
	}

	alloc, err := weighting.Allocate(tokens, def.Scheme, def.UnitWeight)
	if err != nil {
		return fmt.Errorf("allocate weights: %w", err)
	}
	if err := weighting.Validate(alloc.Weights(), def.Scheme); err != nil {
		return fmt.Errorf("allocate weights: %w", err)
	}
	res.Allocation = alloc

	price, err := chain.ToFixedPoint(alloc.AggregatePrice)
	if err != nil {
		return fmt.Errorf("%w: aggregate price: %v", domain.ErrInvalidWeights, err)
	}

	// Phase 4: persist before publish
	persisted, err := o.recorder.Persist(ctx, recorder.Snapshot{
		IndexID:      def.IndexID,
		Timestamp:    res.Timestamp,
		Constituents: alloc.Constituents,
		Price:        alloc.AggregatePrice,
	})
	if err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	res.Persisted = persisted

	// Phase 5: chain sync
	registry, err := o.chains.Registry(def.ChainID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChainQuery, err)
	}
	existingFund, err := o.pendingFund(ctx, def.IndexID)
	if err != nil {
		return err
	}

	syncer := chain.NewSyncer(chain.Options{
		Registry:       registry,
		PublishTimeout: o.publishTimeout,
		DeployTimeout:  o.deployTimeout,
		Logger:         &log,
	})

	syncRes, err := syncer.Sync(ctx, chain.SyncRequest{
		Deploy: chain.DeployRequest{
			FundParams: chain.FundParams{
				IndexID:     def.IndexID,
				Name:        def.Name,
				Ticker:      def.Ticker,
				CustodyID:   def.CustodyID,
				CuratorFee:  def.CuratorFee,
				FeeReceiver: common.HexToAddress(def.FeeReceiver),
			},
			ExistingFund: existingFund,
		},
		Publish: chain.PublishRequest{
			IndexID:       def.IndexID,
			Weights:       alloc.Weights(),
			Price:         price,
			Timestamp:     res.Timestamp,
			ChainSelector: def.ChainSelector,
		},
	})
	res.Sync = syncRes
	o.trackFund(ctx, def, syncRes, err, log)
	return err
}

func (o *Orchestrator) isHistoric(at time.Time) bool {
	return o.prices != nil && o.now().Sub(at) > o.historicAfter
}

// historicPrices re-prices tokens for the UTC day of at. A token that cannot
// be priced fails the cycle with domain.ErrDataFetch.
func (o *Orchestrator) historicPrices(ctx context.Context, tokens []domain.Token, at time.Time) ([]domain.Token, error) {
	out := make([]domain.Token, len(tokens))
	for i, tok := range tokens {
		price, err := retry.DoValue(ctx, o.pricePolicy, func(ctx context.Context) (float64, error) {
			return o.prices.GetHistoricPrice(ctx, tok.ID, at)
		})
		if err != nil {
			if !errors.Is(err, domain.ErrDataFetch) {
				err = fmt.Errorf("%w: %v", domain.ErrDataFetch, err)
			}
			return nil, fmt.Errorf("historic price of %s: %w", tok.ID, err)
		}
		tok.Price = price
		out[i] = tok
	}
	return out, nil
}

// pendingFund returns the fund left unregistered by an earlier cycle, or the
// zero address. A read failure aborts the cycle: deploying without knowing
// about a pending fund could create a second one.
func (o *Orchestrator) pendingFund(ctx context.Context, indexID uint64) (common.Address, error) {
	f, err := o.pending.Get(ctx, indexID)
	if errors.Is(err, storage.ErrNotFound) {
		return common.Address{}, nil
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("load pending fund of index %d: %w", indexID, err)
	}
	return f.Fund, nil
}

// trackFund remembers a fund left unregistered so the next cycle only
// registers it, and forgets it once the index is deployed.
func (o *Orchestrator) trackFund(ctx context.Context, def domain.IndexDefinition, res *chain.SyncResult, err error, log zerolog.Logger) {
	ctx = context.WithoutCancel(ctx)
	switch {
	case errors.Is(err, domain.ErrRegistrationFailed) && res != nil && res.Fund != (common.Address{}):
		pf := &domain.PendingFund{
			IndexID:    def.IndexID,
			ChainID:    def.ChainID,
			Fund:       res.Fund,
			DeployedAt: o.now().Unix(),
		}
		if perr := o.pending.Put(ctx, pf); perr != nil {
			log.Error().Err(perr).Str("fund", res.Fund.Hex()).Msg("failed to record pending fund")
		}
	case res != nil && res.State >= chain.StateDeployed:
		if derr := o.pending.Delete(ctx, def.IndexID); derr != nil {
			log.Warn().Err(derr).Msg("failed to clear pending fund")
		}
	}
}

func (o *Orchestrator) notify(ctx context.Context, res *CycleResult, log zerolog.Logger) {
	ev := notify.CycleCompleted{
		CycleID:          res.CycleID,
		IndexID:          res.IndexID,
		Timestamp:        res.Timestamp,
		Price:            res.Allocation.AggregatePrice,
		Constituents:     len(res.Allocation.Constituents),
		Deployed:         res.Sync.Deployed,
		AlreadyPublished: res.Sync.AlreadyPublished,
	}
	if res.Sync.Receipt != nil {
		ev.TxHash = res.Sync.Receipt.TxHash.Hex()
	}
	if err := o.notifier.CycleCompleted(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("cycle notification failed")
	}
}

// RunAll runs one cycle per definition. Different indices run concurrently;
// every failure is returned joined, tagged with its index id.
func (o *Orchestrator) RunAll(ctx context.Context, defs []domain.IndexDefinition, at time.Time) ([]*CycleResult, error) {
	results := make([]*CycleResult, len(defs))
	errs := make([]error, len(defs))

	var wg sync.WaitGroup
	for i, def := range defs {
		wg.Add(1)
		go func(i int, def domain.IndexDefinition) {
			defer wg.Done()
			res, err := o.RunCycle(ctx, def, at)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("index %d: %w", def.IndexID, err)
			}
		}(i, def)
	}
	wg.Wait()

	return results, errors.Join(errs...)
}
