package fetch

import "time"

// RetryPolicy controls chunk retry behavior. Backoff grows linearly with
// the attempt number, matching the upstream API's guidance for 429 storms.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy builds a policy with sane defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// Backoff returns the wait duration before the next attempt.
// Attempt is zero-based; the first retry waits one BaseDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return time.Duration(attempt+1) * p.BaseDelay
}
