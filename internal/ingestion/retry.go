package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"raydium-swap-ingest/internal/solana"
)

// ErrRetriesExhausted is returned by RetryPolicy.Do when every attempt
// failed with a retryable error. It wraps the last error.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Retry defaults.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
)

// RetryPolicy retries an operation with exponential backoff. It is separate
// from the transport so retry behaviour can be tested without a network.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first; <= 0 selects DefaultMaxAttempts
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap on a single delay
	Multiplier  float64       // growth factor; <= 0 selects 2
	Jitter      float64       // randomization factor in [0, 1)

	// Retryable decides whether err is worth another attempt.
	// Nil selects solana.IsRetryable.
	Retryable func(err error) bool

	// Sleep waits for d or until ctx is done. Nil selects a timer wait.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, the
// attempt cap is reached or ctx is done. It returns the number of attempts
// made. Non-retryable errors are returned unchanged; an exhausted cap
// returns an error matching both ErrRetriesExhausted and the last error.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = solana.IsRetryable
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	b := p.backoff()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if !retryable(lastErr) {
			return attempt, lastErr
		}
		if attempt == maxAttempts {
			break
		}

		delay := b.NextBackOff()
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return attempt, fmt.Errorf("%w: %w", err, lastErr)
		}
	}

	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, lastErr)
}

func (p RetryPolicy) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultBaseDelay
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = DefaultMaxDelay
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier <= 0 {
		b.Multiplier = 2
	}
	b.RandomizationFactor = p.Jitter
	// The attempt cap bounds the loop, not elapsed time.
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
