package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned once every attempt allowed by a Policy has failed.
var ErrExhausted = errors.New("retries exhausted")

const (
	// BuildAttempts bounds the account-visibility race during transaction builds.
	BuildAttempts = 5
	// BuildInterval is the fixed spacing between build attempts.
	BuildInterval = 2 * time.Second
)

// Policy is a capped, fixed-interval retry policy.
type Policy struct {
	Attempts int
	Interval time.Duration
}

// BuildPolicy returns the policy used for transaction builds.
func BuildPolicy() Policy {
	return Policy{Attempts: BuildAttempts, Interval: BuildInterval}
}

// Do runs fn until it succeeds, returns an error retryable rejects, or the
// attempt cap is reached. A nil retryable retries every error.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error, retryable func(error) bool) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		if p.Interval > 0 {
			timer := time.NewTimer(p.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}
