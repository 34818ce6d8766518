package download

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newBackOff returns a deterministic doubling backoff: base, 2*base,
// 4*base and so on, never exceeding max and never giving up on its own.
func newBackOff(base, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// RetryDelay is the wait before the next attempt once attempts have been
// made: min(base * 2^(attempts-1), max).
func RetryDelay(base, max time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		return 0
	}
	b := newBackOff(base, max)
	var d time.Duration
	for range attempts {
		d = b.NextBackOff()
	}
	return d
}
