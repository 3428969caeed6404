// Package retry implements the bounded fixed-interval retry policy used by
// the HTTP fetcher and the redirect resolver.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/blackarch/wordlistctl/pkg/errors"
)

// Policy retries an operation up to Attempts times in total, waiting
// Interval between attempts. Errors classified non-retryable by
// errors.IsRetryable stop the loop immediately.
type Policy struct {
	Attempts int
	Interval time.Duration

	// NewTimer overrides the wait implementation; tests use it to avoid sleeping.
	NewTimer func() backoff.Timer

	// Notify is called after a failed attempt, before waiting.
	Notify func(attempt int, err error, wait time.Duration)
}

// Do runs op until it succeeds, fails permanently, the budget is exhausted or
// ctx is done. op receives the 1-based attempt number. The last error is
// returned unwrapped from any backoff bookkeeping.
func (p Policy) Do(ctx context.Context, op func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Interval)
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		err := op(attempt)
		if err != nil && !errors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if p.Notify != nil {
			p.Notify(attempt, err, wait)
		}
	}

	var timer backoff.Timer
	if p.NewTimer != nil {
		timer = p.NewTimer()
	}
	// A nil timer makes backoff fall back to its real-time implementation.
	return backoff.RetryNotifyWithTimer(operation, b, notify, timer)
}
