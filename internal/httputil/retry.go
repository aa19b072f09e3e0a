// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP and retry helpers shared across stages.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/paperflow/pkg/types"
)

// Policy is a fixed-delay retry policy. The contract callers rely on is the
// number and ordering of attempts; the delay only spaces them out.
type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// Delay is the wait between consecutive attempts.
	Delay time.Duration
}

// PolicyFrom converts a configured retry block into a Policy.
func PolicyFrom(c types.RetryConfig) Policy {
	return Policy{MaxRetries: c.MaxRetries, Delay: c.RetryDelay}
}

// Attempts returns the total number of attempts the policy allows.
func (p Policy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// AttemptFunc performs one attempt. attempt starts at 1.
type AttemptFunc func(ctx context.Context, attempt int) error

// permanentError stops the retry loop early.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry runs fn until it succeeds, returns a Permanent error, or the policy
// is exhausted. It returns the number of attempts made and the last error.
// If the context is cancelled during a wait, ctx.Err() is returned.
func Retry(ctx context.Context, p Policy, fn AttemptFunc) (int, error) {
	var lastErr error
	attempts := p.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && p.Delay > 0 {
			select {
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			case <-time.After(p.Delay):
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return attempt, perm.err
		}
		lastErr = err

		if ctx.Err() != nil {
			return attempt, lastErr
		}
	}
	return attempts, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
