// Package retry holds the bounded linear-backoff loop shared by the collector
// and the notification sinks.
package retry

import (
	"context"
	"time"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning early with ctx.Err() if ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
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

// Policy describes a bounded retry loop with backoff attempt × Unit.
type Policy struct {
	Attempts int
	Unit     time.Duration
	Sleep    SleepFunc // Defaults to Sleep

	// Retryable decides whether an error is worth another attempt. Nil means
	// every error is retried.
	Retryable func(error) bool
	// OnRetry is called before each backoff wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempts
// are exhausted. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}

		wait := time.Duration(attempt) * p.Unit
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}
