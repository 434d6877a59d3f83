package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"crypto-index-lab/internal/chain"
	"crypto-index-lab/internal/domain"
)

// File is the YAML index configuration.
type File struct {
	Chains  []ChainConfig `yaml:"chains"`
	Indices []IndexConfig `yaml:"indices"`
}

// ChainConfig describes one registry deployment.
type ChainConfig struct {
	ChainID      uint64 `yaml:"chain_id"`
	RPCURL       string `yaml:"rpc_url"`
	Registry     string `yaml:"registry"`
	PrivateKey   string `yaml:"private_key"`
	FundArtifact string `yaml:"fund_artifact"`
}

// IndexConfig describes one index.
type IndexConfig struct {
	ID                 uint64            `yaml:"id"`
	Name               string            `yaml:"name"`
	Ticker             string            `yaml:"ticker"`
	CustodyID          string            `yaml:"custody_id"`
	Scheme             string            `yaml:"scheme"`
	UnitWeight         uint64            `yaml:"unit_weight"`
	TargetCount        int               `yaml:"target_count"`
	ExcludedCategories []string          `yaml:"excluded_categories"`
	Allowlist          []string          `yaml:"allowlist"`
	FallbackTokens     []string          `yaml:"fallback_tokens"`
	AddressOverrides   map[string]string `yaml:"address_overrides"`
	QuoteAssets        []string          `yaml:"quote_assets"`
	MinListingAgeDays  int               `yaml:"min_listing_age_days"`
	CuratorFee         uint64            `yaml:"curator_fee"`
	FeeReceiver        string            `yaml:"fee_receiver"`
	ChainID            uint64            `yaml:"chain_id"`
	ChainSelector      uint64            `yaml:"chain_selector"`
}

// LoadFile reads and validates an index configuration file.
// ${VAR} references are expanded from the environment before parsing.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates an index configuration.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("parse index config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate reports every invalid field at once.
func (f *File) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	chains := make(map[uint64]struct{}, len(f.Chains))
	for i, c := range f.Chains {
		if c.ChainID == 0 {
			add("chains[%d]: chain_id is required", i)
		}
		if _, dup := chains[c.ChainID]; dup {
			add("chains[%d]: duplicate chain_id %d", i, c.ChainID)
		}
		chains[c.ChainID] = struct{}{}
		if c.RPCURL == "" {
			add("chains[%d]: rpc_url is required", i)
		}
		if !common.IsHexAddress(c.Registry) {
			add("chains[%d]: registry %q is not a hex address", i, c.Registry)
		}
	}

	if len(f.Indices) == 0 {
		add("no indices configured")
	}
	ids := make(map[uint64]struct{}, len(f.Indices))
	for i, ix := range f.Indices {
		prefix := fmt.Sprintf("indices[%d]", i)
		if ix.ID == 0 {
			add("%s: id is required", prefix)
		}
		if _, dup := ids[ix.ID]; dup {
			add("%s: duplicate id %d", prefix, ix.ID)
		}
		ids[ix.ID] = struct{}{}
		if ix.Name == "" {
			add("%s: name is required", prefix)
		}
		if ix.Ticker == "" {
			add("%s: ticker is required", prefix)
		}
		scheme := domain.WeightScheme(ix.Scheme)
		if !scheme.IsValid() {
			add("%s: unknown scheme %q", prefix, ix.Scheme)
		}
		if scheme == domain.SchemeFixedUnit && ix.UnitWeight == 0 {
			add("%s: unit_weight is required for scheme %s", prefix, domain.SchemeFixedUnit)
		}
		if ix.TargetCount <= 0 {
			add("%s: target_count must be positive", prefix)
		}
		if ix.MinListingAgeDays < 0 {
			add("%s: min_listing_age_days must not be negative", prefix)
		}
		if ix.FeeReceiver != "" && !common.IsHexAddress(ix.FeeReceiver) {
			add("%s: fee_receiver %q is not a hex address", prefix, ix.FeeReceiver)
		}
		for id, addr := range ix.AddressOverrides {
			if !common.IsHexAddress(addr) {
				add("%s: address_overrides[%s] %q is not a hex address", prefix, id, addr)
			}
		}
		if _, ok := chains[ix.ChainID]; !ok {
			add("%s: chain_id %d has no chains entry", prefix, ix.ChainID)
		}
	}

	return errors.Join(errs...)
}

// Definitions returns the configured indices in file order.
func (f *File) Definitions() []domain.IndexDefinition {
	out := make([]domain.IndexDefinition, len(f.Indices))
	for i, ix := range f.Indices {
		out[i] = ix.Definition()
	}
	return out
}

// Definition returns the index with the given id.
func (f *File) Definition(id uint64) (domain.IndexDefinition, error) {
	for _, ix := range f.Indices {
		if ix.ID == id {
			return ix.Definition(), nil
		}
	}
	return domain.IndexDefinition{}, fmt.Errorf("index %d is not configured", id)
}

// Endpoints returns the chain endpoints for chain.Dial.
func (f *File) Endpoints() []chain.Endpoint {
	out := make([]chain.Endpoint, len(f.Chains))
	for i, c := range f.Chains {
		out[i] = chain.Endpoint{
			ChainID:      c.ChainID,
			RPCURL:       c.RPCURL,
			Registry:     c.Registry,
			PrivateKey:   strings.TrimPrefix(c.PrivateKey, "0x"),
			FundArtifact: c.FundArtifact,
		}
	}
	return out
}

// Definition maps the YAML entry to the domain model.
func (ix IndexConfig) Definition() domain.IndexDefinition {
	return domain.IndexDefinition{
		IndexID:            ix.ID,
		Name:               ix.Name,
		Ticker:             ix.Ticker,
		CustodyID:          ix.CustodyID,
		Scheme:             domain.WeightScheme(ix.Scheme),
		UnitWeight:         ix.UnitWeight,
		TargetCount:        ix.TargetCount,
		ExcludedCategories: ix.ExcludedCategories,
		Allowlist:          ix.Allowlist,
		FallbackTokens:     ix.FallbackTokens,
		AddressOverrides:   ix.AddressOverrides,
		QuoteAssets:        ix.QuoteAssets,
		MinListingAgeDays:  ix.MinListingAgeDays,
		CuratorFee:         ix.CuratorFee,
		FeeReceiver:        ix.FeeReceiver,
		ChainID:            ix.ChainID,
		ChainSelector:      ix.ChainSelector,
	}
}
