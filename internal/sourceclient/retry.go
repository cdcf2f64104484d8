package sourceclient

import (
	"context"
	"time"

	"github.com/broadcast-engine/stationcast/internal/errs"
)

// maxTransientAttempts bounds exponential-backoff retries for transient
// source failures.
const maxTransientAttempts = 5

// withRetry runs fn, retrying with exponential backoff while the returned
// error classifies as transient (source_unavailable). Unauthorized,
// not-found, and malformed errors are surfaced immediately without retry.
func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	backoff := 200 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxTransientAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errs.KindOf(err) != errs.KindSourceUnavailable {
			return zero, err
		}
		if attempt == maxTransientAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return zero, lastErr
}
