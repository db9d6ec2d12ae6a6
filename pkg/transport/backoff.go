package transport

import (
	"math/rand"
	"time"
)

// backoffDelay computes the jittered exponential delay before reconnection
// attempt n (zero-based). The delay doubles per attempt up to cap, then up to
// half the computed delay is added as jitter so clients do not reconnect in
// lockstep.
func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if cap <= 0 {
		cap = 30 * time.Second
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			delay = cap
			break
		}
	}

	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}
