// ABOUTME: Exponential backoff schedule for the reconnect loop
// ABOUTME: Doubles from a one-second base with jitter, capped at the configured ceiling
package transport

import (
	"math/rand"
	"time"
)

const backoffBase = time.Second

// backoffDelay returns the delay before reconnect attempt k (zero
// based): min(base·2^k, max) with up to ±10% jitter.
func backoffDelay(attempt int, max time.Duration) time.Duration {
	if max < backoffBase {
		max = backoffBase
	}
	d := backoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(d)/5+1)) - d/10
	d += jitter
	if d < 0 {
		d = backoffBase
	}
	return d
}
