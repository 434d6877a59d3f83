package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// Endpoint describes how to reach the registry on one chain.
type Endpoint struct {
	ChainID      uint64
	RPCURL       string
	Registry     string // registry contract address (hex)
	PrivateKey   string // hex secp256k1 key; empty for read-only access
	FundArtifact string // path to the fund contract artifact; empty disables deploys
}

// Clients holds one registry per chain id. It is built once per engine
// instance and passed to the components that need chain access.
type Clients struct {
	registries map[uint64]Registry
	closers    []func()
}

// NewClients creates an empty client set.
func NewClients() *Clients {
	return &Clients{registries: make(map[uint64]Registry)}
}

// Add registers the registry for chainID, replacing any previous one.
func (c *Clients) Add(chainID uint64, r Registry) {
	c.registries[chainID] = r
}

// Registry returns the registry for chainID.
func (c *Clients) Registry(chainID uint64) (Registry, error) {
	r, ok := c.registries[chainID]
	if !ok {
		return nil, fmt.Errorf("no registry configured for chain %d", chainID)
	}
	return r, nil
}

// ChainIDs returns configured chain ids in ascending order.
func (c *Clients) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(c.registries))
	for id := range c.registries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close releases every underlying RPC connection.
func (c *Clients) Close() {
	for _, fn := range c.closers {
		fn()
	}
	c.closers = nil
}

// Dial connects to every endpoint and binds its registry.
func Dial(ctx context.Context, endpoints []Endpoint, logger *zerolog.Logger) (*Clients, error) {
	clients := NewClients()
	for _, ep := range endpoints {
		reg, closeFn, err := dialEndpoint(ctx, ep, logger)
		if err != nil {
			clients.Close()
			return nil, fmt.Errorf("chain %d: %w", ep.ChainID, err)
		}
		clients.Add(ep.ChainID, reg)
		clients.closers = append(clients.closers, closeFn)
	}
	return clients, nil
}

func dialEndpoint(ctx context.Context, ep Endpoint, logger *zerolog.Logger) (*EthRegistry, func(), error) {
	if !common.IsHexAddress(ep.Registry) {
		return nil, nil, fmt.Errorf("invalid registry address %q", ep.Registry)
	}

	client, err := ethclient.DialContext(ctx, ep.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}

	opts := EthRegistryOptions{
		Address: common.HexToAddress(ep.Registry),
		Backend: client,
		Logger:  logger,
	}
	if ep.PrivateKey != "" {
		auth, err := NewTransactor(ep.PrivateKey, ep.ChainID)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		opts.Auth = auth
	}
	if ep.FundArtifact != "" {
		art, err := LoadArtifact(ep.FundArtifact)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		opts.Fund = art
	}

	reg, err := NewEthRegistry(opts)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return reg, client.Close, nil
}

// NewTransactor builds signing options from a hex private key.
func NewTransactor(hexKey string, chainID uint64) (*bind.TransactOpts, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	return auth, nil
}
