// Package retry provides bounded retry policies on top of cenkalti/backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default policy values.
const (
	DefaultAttempts     = 3
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
	DefaultMultiplier   = 2.0
)

// Policy is a bounded exponential backoff.
type Policy struct {
	Attempts     int // total attempts including the first; <= 0 means DefaultAttempts
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultPolicy returns the policy used for provider fetches.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:     DefaultAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Multiplier:   DefaultMultiplier,
	}
}

func (p Policy) attempts() int {
	if p.Attempts <= 0 {
		return DefaultAttempts
	}
	return p.Attempts
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialDelay
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = DefaultInitialDelay
	}
	eb.MaxInterval = p.MaxDelay
	if eb.MaxInterval <= 0 {
		eb.MaxInterval = DefaultMaxDelay
	}
	eb.Multiplier = p.Multiplier
	if eb.Multiplier <= 1 {
		eb.Multiplier = DefaultMultiplier
	}
	eb.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.attempts()-1)), ctx)
}

// Do runs op until it succeeds, returns a permanent error, or attempts run out.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	return backoff.Retry(func() error { return op(ctx) }, p.backOff(ctx))
}

// DoValue is Do for operations returning a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) { return op(ctx) }, p.backOff(ctx))
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// ErrExhausted is returned by Downgrade when every option failed.
var ErrExhausted = errors.New("all fallback options exhausted")

// Downgrade composes two policies: each option is tried with the bounded
// per-option policy, and on exhaustion the next option is tried.
// Options are expected in preference order (e.g. finer interval first).
func Downgrade[O, T any](ctx context.Context, options []O, p Policy, op func(ctx context.Context, opt O) (T, error)) (T, O, error) {
	var zero T
	var lastErr error
	for _, opt := range options {
		if err := ctx.Err(); err != nil {
			return zero, opt, err
		}
		v, err := DoValue(ctx, p, func(ctx context.Context) (T, error) {
			return op(ctx, opt)
		})
		if err == nil {
			return v, opt, nil
		}
		lastErr = err
	}
	var none O
	if lastErr == nil {
		return zero, none, ErrExhausted
	}
	return zero, none, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}
