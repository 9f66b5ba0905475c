// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"time"
)

// MaxBackoff caps the wait between two attempts of RetryWithBackoff.
const MaxBackoff = 5 * time.Second

// Backoff returns the wait before the given zero-based attempt: nothing before the
// first, base before the second, then doubling up to MaxBackoff.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	wait := base
	for range attempt - 1 {
		wait *= 2
		if wait >= MaxBackoff {
			return MaxBackoff
		}
	}
	return min(wait, MaxBackoff)
}

// RetryWithBackoff calls op until it succeeds, asks not to be retried or has been
// called maxAttempts times (at least once). op reports retry=false to stop early
// with its error. When ctx ends during a wait the context error is returned,
// wrapped together with the last error op returned.
func RetryWithBackoff(
	ctx context.Context,
	maxAttempts int,
	base time.Duration,
	op func(attempt int) (retry bool, err error),
) error {
	maxAttempts = max(maxAttempts, 1)

	var lastErr error
	for attempt := range maxAttempts {
		if wait := Backoff(base, attempt); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				if lastErr != nil {
					return fmt.Errorf("gave up after %d attempt(s): %w (last: %w)", attempt, ctx.Err(), lastErr)
				}
				return ctx.Err()
			case <-timer.C:
			}
		}

		retry, err := op(attempt)
		switch {
		case err == nil:
			return nil
		case !retry:
			return err
		}
		lastErr = err
	}
	return lastErr
}
