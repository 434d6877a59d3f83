package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-index-lab/internal/chain"
	chainstub "crypto-index-lab/internal/chain/stub"
	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/eligibility"
	"crypto-index-lab/internal/lock"
	"crypto-index-lab/internal/marketdata"
	mdstub "crypto-index-lab/internal/marketdata/stub"
	"crypto-index-lab/internal/notify"
	"crypto-index-lab/internal/recorder"
	"crypto-index-lab/internal/retry"
	"crypto-index-lab/internal/storage"
	"crypto-index-lab/internal/storage/memory"
)

const testChainID = 8453

var (
	fixedNow  = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	fastRetry = retry.Policy{Attempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.CycleCompleted
	err    error
}

func (n *recordingNotifier) CycleCompleted(_ context.Context, ev notify.CycleCompleted) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

type harness struct {
	orch       *Orchestrator
	prices     *mdstub.PriceSource
	exchange   *mdstub.Exchange
	registry   *chainstub.Registry
	rebalances *memory.RebalanceStore
	comps      *memory.CompositionStore
	notifier   *recordingNotifier
	locker     *lock.Memory
	pending    *memory.PendingFundStore
	opts       Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		prices:     mdstub.NewPriceSource(),
		exchange:   mdstub.NewExchange("USDT", "BTC", "ETH", "SOL"),
		registry:   chainstub.NewRegistry(),
		rebalances: memory.NewRebalanceStore(),
		comps:      memory.NewCompositionStore(),
		notifier:   &recordingNotifier{},
		locker:     lock.NewMemory(),
		pending:    memory.NewPendingFundStore(),
	}
	h.prices.Tokens = []domain.Token{
		{ID: "bitcoin", Symbol: "BTC", MarketCap: 1000, Price: 100},
		{ID: "ethereum", Symbol: "ETH", MarketCap: 500, Price: 50},
		{ID: "monero", Symbol: "XMR", MarketCap: 300, Price: 10},
	}

	clients := chain.NewClients()
	clients.Add(testChainID, h.registry)

	now := func() time.Time { return fixedNow }
	h.opts = Options{
		Selector: eligibility.New(eligibility.Options{
			Source:         h.prices,
			Exchange:       h.exchange,
			Pages:          marketdata.PageOptions{MaxPages: 2, PerPage: 10},
			CategoryPolicy: fastRetry,
			Now:            now,
		}),
		Prices: h.prices,
		Recorder: recorder.New(recorder.Options{
			Compositions: h.comps,
			Rebalances:   h.rebalances,
			Now:          now,
		}),
		Chains:         clients,
		Locker:         h.locker,
		Notifier:       h.notifier,
		PendingFunds:   h.pending,
		PublishTimeout: time.Second,
		PricePolicy:    fastRetry,
		Now:            now,
		NewCycleID:     func() string { return "cycle-1" },
	}
	h.orch = New(h.opts)
	return h
}

func testDefinition() domain.IndexDefinition {
	return domain.IndexDefinition{
		IndexID:     21,
		Name:        "Top 2",
		Ticker:      "TOP2",
		CustodyID:   "custody-21",
		Scheme:      domain.SchemeEqual,
		TargetCount: 2,
		QuoteAssets: []string{"USDT"},
		ChainID:     testChainID,
	}
}

func TestRunCycle_DeployThenPublish(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.orch.RunCycle(ctx, testDefinition(), fixedNow)
	require.NoError(t, err)

	assert.Equal(t, OutcomeConfirmed, res.Outcome())
	assert.Equal(t, "cycle-1", res.CycleID)
	assert.True(t, res.Sync.Deployed)
	assert.Equal(t, chain.StateConfirmed, res.Sync.State)
	assert.Equal(t, 1, h.registry.DeployCalls)
	assert.Equal(t, 1, h.registry.PublishCalls)

	assert.Equal(t, []uint64{5000, 5000}, []uint64{res.Allocation.Constituents[0].Weight, res.Allocation.Constituents[1].Weight})
	assert.InDelta(t, 75.0, res.Allocation.AggregatePrice, 1e-9)

	rows, err := h.comps.GetByTimestamp(ctx, 21, fixedNow.Unix())
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rb, err := h.rebalances.Get(ctx, 21, fixedNow.Unix())
	require.NoError(t, err)
	assert.InDelta(t, 75.0, rb.Price, 1e-9)

	rec, err := h.registry.GetIndexInfo(ctx, 21)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Unix(), rec.LastWeightUpdate)
	assert.InDelta(t, 75.0, rec.LastPrice, 1e-9)

	require.Len(t, h.notifier.events, 1)
	ev := h.notifier.events[0]
	assert.Equal(t, uint64(21), ev.IndexID)
	assert.True(t, ev.Deployed)
	assert.NotEmpty(t, ev.TxHash)
}

func TestRunCycle_RerunSameTimestampIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	def := testDefinition()

	_, err := h.orch.RunCycle(ctx, def, fixedNow)
	require.NoError(t, err)

	res, err := h.orch.RunCycle(ctx, def, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, OutcomeAlreadyPublished, res.Outcome())
	assert.False(t, res.Persisted.RebalanceInserted)
	assert.Equal(t, 1, h.registry.DeployCalls)
	assert.Equal(t, 1, h.registry.PublishCalls)

	all, err := h.rebalances.GetByIndex(ctx, 21)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRunCycle_LocalSnapshotDoesNotSkipPublish(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.registry.Register(domain.IndexRecord{IndexID: 21, Name: "Top 2"})

	_, err := h.rebalances.InsertIfAbsent(ctx, &domain.Rebalance{IndexID: 21, Timestamp: fixedNow.Unix(), Price: 1})
	require.NoError(t, err)

	res, err := h.orch.RunCycle(ctx, testDefinition(), fixedNow)
	require.NoError(t, err)

	assert.False(t, res.Persisted.RebalanceInserted)
	assert.Equal(t, OutcomeConfirmed, res.Outcome())
	assert.Equal(t, 0, h.registry.DeployCalls)
	assert.Equal(t, 1, h.registry.PublishCalls)
}

func TestRunCycle_PublishFailureRetriedNextCycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	def := testDefinition()

	h.registry.PublishErr = errors.New("execution reverted")
	res, err := h.orch.RunCycle(ctx, def, fixedNow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrChainWrite))
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, OutcomeFailed, res.Outcome())
	assert.Equal(t, chain.StateDeployed, res.Sync.State)

	// persisted before the failed publish
	_, err = h.rebalances.Get(ctx, 21, fixedNow.Unix())
	require.NoError(t, err)
	assert.Empty(t, h.notifier.events)

	h.registry.PublishErr = nil
	res, err = h.orch.RunCycle(ctx, def, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, res.Outcome())
	assert.False(t, res.Sync.Deployed)
	assert.Equal(t, 1, h.registry.DeployCalls)
	assert.Equal(t, 2, h.registry.PublishCalls)
}

func TestRunCycle_ExistenceErrorNeverDeploys(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.registry.InfoErr = errors.New("rpc unavailable")

	res, err := h.orch.RunCycle(ctx, testDefinition(), fixedNow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrChainQuery))
	assert.Equal(t, chain.StateUnknown, res.Sync.State)
	assert.Equal(t, 0, h.registry.DeployCalls)
	assert.Equal(t, 0, h.registry.PublishCalls)

	_, err = h.rebalances.Get(ctx, 21, fixedNow.Unix())
	assert.NoError(t, err)
}

func TestRunCycle_RegistrationFailureRecovers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	def := testDefinition()

	h.registry.RegisterErr = errors.New("out of gas")
	res, err := h.orch.RunCycle(ctx, def, fixedNow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRegistrationFailed))
	fund := res.Sync.Fund
	assert.NotEqual(t, common.Address{}, fund)
	assert.Equal(t, 0, h.registry.PublishCalls)

	h.registry.RegisterErr = nil
	res, err = h.orch.RunCycle(ctx, def, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, 1, h.registry.DeployCalls)
	assert.Equal(t, 2, h.registry.RegisterCalls)
	assert.Equal(t, fund, res.Sync.Fund)
	assert.Equal(t, OutcomeConfirmed, res.Outcome())
}

func TestRunCycle_PendingFundSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	def := testDefinition()

	h.registry.RegisterErr = errors.New("nonce too low")
	res, err := h.orch.RunCycle(ctx, def, fixedNow)
	require.ErrorIs(t, err, domain.ErrRegistrationFailed)
	fund := res.Sync.Fund

	pf, err := h.pending.Get(ctx, def.IndexID)
	require.NoError(t, err)
	assert.Equal(t, fund, pf.Fund)
	assert.Equal(t, uint64(testChainID), pf.ChainID)

	// A fresh orchestrator over the same stores stands in for a restarted process.
	h.registry.RegisterErr = nil
	restarted := New(h.opts)
	res, err = restarted.RunCycle(ctx, def, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, 1, h.registry.DeployCalls)
	assert.Equal(t, fund, res.Sync.Fund)
	_, err = h.pending.Get(ctx, def.IndexID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

type failingPendingStore struct {
	*memory.PendingFundStore
}

func (failingPendingStore) Get(context.Context, uint64) (*domain.PendingFund, error) {
	return nil, errors.New("connection reset")
}

func TestRunCycle_PendingFundReadErrorNeverDeploys(t *testing.T) {
	h := newHarness(t)
	opts := h.opts
	opts.PendingFunds = failingPendingStore{memory.NewPendingFundStore()}

	_, err := New(opts).RunCycle(context.Background(), testDefinition(), fixedNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pending fund")
	assert.Zero(t, h.registry.DeployCalls)
	assert.Zero(t, h.registry.InfoCalls)
}

func TestRunCycle_ClaimHeld(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	release, err := h.locker.Acquire(ctx, 21)
	require.NoError(t, err)
	defer func() { _ = release(ctx) }()

	res, err := h.orch.RunCycle(ctx, testDefinition(), fixedNow)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, lock.ErrHeld)
	assert.Equal(t, 0, h.registry.InfoCalls)
}

func TestRunCycle_ReleasesClaim(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.registry.InfoErr = errors.New("down")

	_, err := h.orch.RunCycle(ctx, testDefinition(), fixedNow)
	require.Error(t, err)

	release, err := h.locker.Acquire(ctx, 21)
	require.NoError(t, err)
	_ = release(ctx)
}

func TestRunCycle_HistoricPricing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	at := fixedNow.AddDate(0, 0, -10)
	day := at.Format("2006-01-02")
	h.prices.HistoricPrices["bitcoin"] = map[string]float64{day: 80}
	h.prices.HistoricPrices["ethereum"] = map[string]float64{day: 40}

	res, err := h.orch.RunCycle(ctx, testDefinition(), at)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, res.Allocation.AggregatePrice, 1e-9)
	assert.Equal(t, at.Unix(), res.Timestamp)
}

func TestRunCycle_HistoricPriceMissing(t *testing.T) {
	h := newHarness(t)
	at := fixedNow.AddDate(0, 0, -10)
	h.prices.HistoricPrices["bitcoin"] = map[string]float64{at.Format("2006-01-02"): 80}

	_, err := h.orch.RunCycle(context.Background(), testDefinition(), at)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDataFetch))
	assert.Equal(t, 0, h.registry.InfoCalls)
}

func TestRunCycle_NotificationFailureIgnored(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("broker down")

	res, err := h.orch.RunCycle(context.Background(), testDefinition(), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, res.Outcome())
}

func TestRunCycle_UnknownChain(t *testing.T) {
	h := newHarness(t)
	def := testDefinition()
	def.ChainID = 1

	_, err := h.orch.RunCycle(context.Background(), def, fixedNow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrChainQuery))
}

func TestRunCycle_ExchangeUnavailable(t *testing.T) {
	h := newHarness(t)
	h.exchange.PairsErr = fmt.Errorf("%w: binance 503", domain.ErrDataFetch)

	_, err := h.orch.RunCycle(context.Background(), testDefinition(), fixedNow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDataFetch))
	assert.Equal(t, 0, h.registry.InfoCalls)
}

func TestRunAll_IndependentIndices(t *testing.T) {
	h := newHarness(t)

	ok := testDefinition()
	broken := testDefinition()
	broken.IndexID = 22
	broken.ChainID = 999

	results, err := h.orch.RunAll(context.Background(), []domain.IndexDefinition{ok, broken}, fixedNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 22")
	require.Len(t, results, 2)
	assert.Equal(t, OutcomeConfirmed, results[0].Outcome())
	assert.Equal(t, OutcomeFailed, results[1].Outcome())
}
