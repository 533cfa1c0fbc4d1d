// Package retry re-runs native calls that fail with transient errors.
package retry

import (
	"context"
	"time"

	"github.com/bamsammich/widepath/internal/fserr"
)

// Policy bounds retries of transient failures. MaxAttempts counts the
// first attempt; values below 1 mean a single attempt. The zero Policy
// never retries.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Default is the policy used when neither flags nor config set one.
func Default() Policy {
	return Policy{MaxAttempts: 3, Delay: 250 * time.Millisecond}
}

// None never retries.
func None() Policy { return Policy{MaxAttempts: 1} }

func (p Policy) attempts() int {
	return max(p.MaxAttempts, 1)
}

// Notify is called before each retry with the attempt about to run
// (starting at 2) and the error that caused it.
type Notify func(attempt int, err error)

// Do runs fn until it succeeds, fails with an error that is not
// transient, or runs out of attempts. It waits Delay between attempts and
// gives up early when ctx is done. retries is the number of extra
// attempts made.
func (p Policy) Do(ctx context.Context, fn func() error, notify Notify) (retries int, err error) {
	n := p.attempts()
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !fserr.IsTransient(err) || attempt >= n {
			return retries, err
		}
		if notify != nil {
			notify(attempt+1, err)
		}
		if werr := wait(ctx, p.Delay); werr != nil {
			return retries, werr
		}
		retries++
	}
}

func wait(ctx context.Context, d time.Duration) error {
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
