package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"crypto-index-lab/internal/domain"
)

// ValidateCompositionRows checks rows before they reach a backend.
func ValidateCompositionRows(rows []*domain.CompositionRow) error {
	for i, r := range rows {
		if r == nil || r.TokenAddress == "" {
			return fmt.Errorf("%w: composition row %d", ErrInvalidInput, i)
		}
	}
	return nil
}

// ValidateRebalance checks a rebalance before it reaches a backend.
func ValidateRebalance(r *domain.Rebalance) error {
	if r == nil || r.Timestamp <= 0 {
		return fmt.Errorf("%w: rebalance needs a positive timestamp", ErrInvalidInput)
	}
	return nil
}

// ValidateListingSnapshots checks snapshot rows before they reach a backend.
func ValidateListingSnapshots(rows []*domain.ListingSnapshot) error {
	for i, r := range rows {
		if r == nil || r.Symbol == "" {
			return fmt.Errorf("%w: listing snapshot row %d", ErrInvalidInput, i)
		}
	}
	return nil
}

// ValidatePendingFund checks a pending fund before it reaches a backend.
func ValidatePendingFund(f *domain.PendingFund) error {
	if f == nil || f.Fund == (common.Address{}) {
		return fmt.Errorf("%w: pending fund needs a fund address", ErrInvalidInput)
	}
	return nil
}
