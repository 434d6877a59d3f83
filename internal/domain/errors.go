package domain

import "errors"

// Engine error taxonomy. Wrap with fmt.Errorf("...: %w", ErrX) and branch with errors.Is.
var (
	// ErrDataFetch means a pricing or exchange provider was unavailable or rate-limited.
	ErrDataFetch = errors.New("data fetch failed")

	// ErrChainQuery means an on-chain read failed. Existence checks fail closed on it.
	ErrChainQuery = errors.New("chain query failed")

	// ErrChainWrite means a transaction reverted, was rejected or timed out.
	// Never retried inside the same cycle.
	ErrChainWrite = errors.New("chain write failed")

	// ErrRegistrationFailed means a fund was deployed but registry registration failed.
	ErrRegistrationFailed = errors.New("fund deployed but registration failed")

	// ErrDecode means an on-chain payload was malformed.
	ErrDecode = errors.New("decode failed")

	// ErrDivisionByZero means a return series hit a zero previous price.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrInvalidWeights means a weight set violates its scheme.
	ErrInvalidWeights = errors.New("invalid weights")
)

// IsRetryable reports whether the next scheduled cycle may retry the failed step.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDataFetch) || errors.Is(err, ErrChainWrite)
}
