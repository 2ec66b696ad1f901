package jobqueue

import "time"

// Retry backoff policy: exponential with a cap. The delay for rescheduling a
// failed job is base * 2^(attempts-1), clamped to backoffCap, so transient
// provider outages are retried quickly at first and then spaced out.
const (
	backoffBase = 30 * time.Second
	backoffCap  = 15 * time.Minute
)

// RetryDelay computes the delay before a job that has failed `attempts` times
// becomes claimable again.
func RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	// 2^5 * base already exceeds the cap; avoid shifting into overflow.
	if attempts > 6 {
		return backoffCap
	}
	d := backoffBase << (attempts - 1)
	if d > backoffCap {
		return backoffCap
	}
	return d
}
