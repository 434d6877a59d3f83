package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/logging"
)

// Default bounds on registry calls.
const (
	DefaultPublishTimeout = 3 * time.Minute  // PublishWeights until confirmation
	DefaultDeployTimeout  = 3 * time.Minute  // each of DeployFund and RegisterIndex
	DefaultQueryTimeout   = 30 * time.Second // existence check
)

// Options for creating a Syncer.
type Options struct {
	Registry       Registry
	PublishTimeout time.Duration
	DeployTimeout  time.Duration
	QueryTimeout   time.Duration
	Logger         *zerolog.Logger
}

// Syncer drives index state on the registry.
type Syncer struct {
	registry       Registry
	publishTimeout time.Duration
	deployTimeout  time.Duration
	queryTimeout   time.Duration
	logger         zerolog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(opts Options) *Syncer {
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.DeployTimeout <= 0 {
		opts.DeployTimeout = DefaultDeployTimeout
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	return &Syncer{
		registry:       opts.Registry,
		publishTimeout: opts.PublishTimeout,
		deployTimeout:  opts.DeployTimeout,
		queryTimeout:   opts.QueryTimeout,
		logger:         logging.OrNop(opts.Logger).With().Str("component", "chainsync").Logger(),
	}
}

// MaxDuration is the longest a Sync can take: one existence check, a deploy,
// a registration and a publish, each at its bound.
func (s *Syncer) MaxDuration() time.Duration {
	return s.queryTimeout + 2*s.deployTimeout + s.publishTimeout
}

// DeployRequest describes a new index fund.
type DeployRequest struct {
	FundParams

	// ExistingFund, when set, is a fund deployed by an earlier cycle whose
	// registration failed. Deployment is skipped and only registration runs.
	ExistingFund common.Address
}

// PublishRequest is one weight set to publish.
type PublishRequest struct {
	IndexID       uint64
	Weights       []domain.TokenWeight
	Price         *big.Int // fixed point, see ToFixedPoint
	Timestamp     int64
	ChainSelector uint64
}

// SyncRequest is the on-chain half of a rebalance cycle.
type SyncRequest struct {
	Deploy  DeployRequest
	Publish PublishRequest
}

// SyncResult reports how far a cycle got on-chain.
type SyncResult struct {
	State            State
	Record           *domain.IndexRecord // registry entry read at CHECK_EXISTENCE
	Deployed         bool                // a fund was deployed or registered this cycle
	Fund             common.Address
	AlreadyPublished bool     // registry already held weights at or after the timestamp
	Receipt          *Receipt // publish receipt; nil unless published this cycle
}

// IndexExists reports whether the registry knows indexID. It fails closed:
// on a query error it returns false together with a domain.ErrChainQuery,
// and callers must abort rather than deploy.
func (s *Syncer) IndexExists(ctx context.Context, indexID uint64) (bool, error) {
	rec, err := s.indexInfo(ctx, indexID)
	if err != nil {
		return false, err
	}
	return rec.Exists(), nil
}

func (s *Syncer) indexInfo(ctx context.Context, indexID uint64) (*domain.IndexRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rec, err := s.registry.GetIndexInfo(ctx, indexID)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: index %d existence check timed out after %s", domain.ErrChainQuery, indexID, s.queryTimeout)
		}
		if !errors.Is(err, domain.ErrChainQuery) {
			err = fmt.Errorf("%w: %v", domain.ErrChainQuery, err)
		}
		return nil, err
	}
	return rec, nil
}

// DeployIndex deploys a fund and registers it. Registration is attempted
// whenever deployment succeeded; if it fails the deployed address is returned
// together with domain.ErrRegistrationFailed. Deployment and registration are
// each bounded by the deploy timeout; a timeout is a domain.ErrChainWrite.
func (s *Syncer) DeployIndex(ctx context.Context, req DeployRequest) (common.Address, error) {
	log := s.logger.With().Uint64("index_id", req.IndexID).Logger()

	fund := req.ExistingFund
	if fund == (common.Address{}) {
		deployCtx, cancel := context.WithTimeout(ctx, s.deployTimeout)
		addr, rcpt, err := s.registry.DeployFund(deployCtx, req.FundParams)
		timedOut := errors.Is(deployCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err != nil {
			if timedOut {
				return common.Address{}, fmt.Errorf("%w: deploy fund for index %d timed out after %s", domain.ErrChainWrite, req.IndexID, s.deployTimeout)
			}
			if !errors.Is(err, domain.ErrChainWrite) {
				err = fmt.Errorf("%w: deploy fund: %v", domain.ErrChainWrite, err)
			}
			return common.Address{}, err
		}
		fund = addr
		log.Info().Str("fund", fund.Hex()).Str("tx", rcpt.TxHash.Hex()).Msg("fund deployed")
	} else {
		log.Info().Str("fund", fund.Hex()).Msg("registering previously deployed fund")
	}

	registerCtx, cancel := context.WithTimeout(ctx, s.deployTimeout)
	rcpt, err := s.registry.RegisterIndex(registerCtx, req.FundParams, fund)
	timedOut := errors.Is(registerCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		log.Error().Err(err).Str("fund", fund.Hex()).Bool("timed_out", timedOut).Msg("fund deployed but registration failed")
		if timedOut {
			return fund, fmt.Errorf("%w: %w: index %d fund %s: registration timed out after %s",
				domain.ErrRegistrationFailed, domain.ErrChainWrite, req.IndexID, fund.Hex(), s.deployTimeout)
		}
		return fund, fmt.Errorf("%w: index %d fund %s: %v", domain.ErrRegistrationFailed, req.IndexID, fund.Hex(), err)
	}
	log.Info().Str("fund", fund.Hex()).Str("tx", rcpt.TxHash.Hex()).Msg("index registered")
	return fund, nil
}

// PublishWeights encodes and submits a weight set, blocking until it is
// confirmed or the publish timeout expires. A timeout is a domain.ErrChainWrite.
func (s *Syncer) PublishWeights(ctx context.Context, req PublishRequest) (*Receipt, error) {
	if len(req.Weights) == 0 {
		return nil, fmt.Errorf("%w: empty weight set for index %d", domain.ErrInvalidWeights, req.IndexID)
	}
	if req.Price == nil || req.Price.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid fixed-point price for index %d", domain.ErrInvalidWeights, req.IndexID)
	}

	payload, err := EncodeWeightsPayload(req.Weights)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	rcpt, err := s.registry.SetCuratorWeights(ctx, WeightUpdate{
		IndexID:       req.IndexID,
		Timestamp:     req.Timestamp,
		Payload:       payload,
		Price:         req.Price,
		ChainSelector: req.ChainSelector,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: publish for index %d timed out after %s", domain.ErrChainWrite, req.IndexID, s.publishTimeout)
		}
		if !errors.Is(err, domain.ErrChainWrite) {
			err = fmt.Errorf("%w: %v", domain.ErrChainWrite, err)
		}
		return nil, err
	}

	s.logger.Info().
		Uint64("index_id", req.IndexID).
		Int64("timestamp", req.Timestamp).
		Str("tx", rcpt.TxHash.Hex()).
		Uint64("block", rcpt.BlockNumber).
		Msg("weights published")
	return rcpt, nil
}

// Sync runs CHECK_EXISTENCE -> {DEPLOY_THEN_PUBLISH | PUBLISH_ONLY} -> CONFIRMED.
// The returned result is non-nil even on error and carries the state reached.
// Registry state is the only existence oracle: a failed check never deploys.
func (s *Syncer) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	indexID := req.Publish.IndexID
	res := &SyncResult{State: StateUnknown}

	rec, err := s.indexInfo(ctx, indexID)
	if err != nil {
		s.logger.Error().Err(err).Uint64("index_id", indexID).Msg("existence check failed, aborting")
		return res, err
	}
	res.Record = rec

	if rec.Exists() {
		if err := s.advance(res, indexID, StateDeployed); err != nil {
			return res, err
		}
		res.Fund = rec.Fund
	} else {
		if err := s.advance(res, indexID, StateNotDeployed); err != nil {
			return res, err
		}
		if err := s.deploy(ctx, res, req); err != nil {
			return res, err
		}
	}

	if rec.Exists() && rec.LastWeightUpdate >= req.Publish.Timestamp {
		s.logger.Info().
			Uint64("index_id", indexID).
			Int64("timestamp", req.Publish.Timestamp).
			Int64("last_weight_update", rec.LastWeightUpdate).
			Msg("registry already holds weights for this timestamp, skipping publish")
		res.AlreadyPublished = true
		return res, s.advance(res, indexID, StateConfirmed)
	}

	rcpt, err := s.PublishWeights(ctx, req.Publish)
	if err != nil {
		s.logger.Error().Err(err).Uint64("index_id", indexID).Msg("publish failed, index left deployed and un-rebalanced")
		return res, err
	}
	res.Receipt = rcpt
	return res, s.advance(res, indexID, StateConfirmed)
}

func (s *Syncer) deploy(ctx context.Context, res *SyncResult, req SyncRequest) error {
	if !CanDeploy(res.State) {
		return fmt.Errorf("refusing to deploy index %d in state %s", req.Publish.IndexID, res.State)
	}

	deployReq := req.Deploy
	deployReq.IndexID = req.Publish.IndexID
	if len(deployReq.InitialWeights) == 0 && len(req.Publish.Weights) > 0 {
		payload, err := EncodeWeightsPayload(req.Publish.Weights)
		if err != nil {
			return err
		}
		deployReq.InitialWeights = payload
	}

	fund, err := s.DeployIndex(ctx, deployReq)
	res.Fund = fund
	if err != nil {
		return err
	}
	res.Deployed = true
	return s.advance(res, req.Publish.IndexID, StateDeployed)
}

func (s *Syncer) advance(res *SyncResult, indexID uint64, to State) error {
	from := res.State
	next, err := Transition(from, to)
	if err != nil {
		return err
	}
	res.State = next
	s.logger.Info().Uint64("index_id", indexID).Str("from", from.String()).Str("to", to.String()).Msg("state transition")
	return nil
}
