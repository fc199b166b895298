// Package retry runs search engine calls with bounded exponential backoff.
// Only failures classified as transient are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kbase/kbsolrutil/pkg/search"
)

// Policy holds retry configuration.
type Policy struct {
	// InitialInterval is the wait before the second attempt (default: 200ms)
	InitialInterval time.Duration

	// Multiplier grows the wait after each attempt (default: 2)
	Multiplier float64

	// MaxInterval caps a single wait (default: 10s)
	MaxInterval time.Duration

	// MaxAttempts bounds the total number of attempts, including the first
	// (default: 5)
	MaxAttempts int

	// Randomization is the jitter factor applied to each wait (default: 0.1)
	Randomization float64
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 200 * time.Millisecond,
		Multiplier:      2.0,
		MaxInterval:     10 * time.Second,
		MaxAttempts:     5,
		Randomization:   0.1,
	}
}

// SetDefaults fills zero fields from DefaultPolicy.
func (p *Policy) SetDefaults() {
	d := DefaultPolicy()
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Randomization <= 0 || p.Randomization >= 1 {
		p.Randomization = d.Randomization
	}
}

// Validate checks that the policy is usable.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1")
	}
	if p.MaxInterval < p.InitialInterval {
		return fmt.Errorf("max_interval must not be less than initial_interval")
	}
	return nil
}

// backOff builds the schedule for a single call.
func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.Multiplier = p.Multiplier
	eb.MaxInterval = p.MaxInterval
	eb.RandomizationFactor = p.Randomization
	eb.MaxElapsedTime = 0
	eb.Reset()

	retries := 0
	if p.MaxAttempts > 1 {
		retries = p.MaxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// ExhaustedError is returned when every attempt failed transiently.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Notify is called before each wait with the failure and the upcoming delay.
type Notify func(attempt int, err error, wait time.Duration)

// Do calls op until it succeeds, fails with a non-transient error, the
// attempts are used up, or ctx ends. Non-transient errors are returned
// unchanged after the first attempt.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), notify Notify) (T, error) {
	attempts := 0
	var last error

	result, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempts++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		last = err
		if !search.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempts, err, wait)
		}
	})
	if err == nil {
		return result, nil
	}

	var zero T
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return zero, ctxErr
	}
	if search.IsTransient(err) && attempts >= p.MaxAttempts {
		return zero, &ExhaustedError{Attempts: attempts, Err: last}
	}
	return zero, err
}
