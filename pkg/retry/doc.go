// Package retry provides exponential backoff and retry logic for handling
// transient failures when fetching from weather provider APIs.
//
// Only transient errors (network failures, timeouts, 5xx responses) are
// retried in place. Rate-limit errors are deliberately non-retryable here:
// the dispatcher reacts to those by flagging the provider and moving to the
// next one in priority order.
//
// Basic usage:
//
//	records, err := retry.DoWithResult(func() ([]weather.Record, error) {
//		return adapter.Fetch(ctx, city, year)
//	}, &retry.Config{
//		MaxAttempts: 4,
//		Backoff: &retry.ExponentialBackoff{
//			BaseDelay:    2 * time.Second,
//			MaxDelay:     30 * time.Second,
//			Multiplier:   2.0,
//			JitterFactor: 0.1,
//		},
//		Context: ctx,
//	})
package retry
