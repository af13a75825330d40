package jobs

import (
	"math"
	"time"
)

// retryDelay computes the wait before retry attempt n (1-indexed):
// initial * 2^(n-1), capped at max. A zero initial disables the delay and
// retries re-enqueue immediately.
func retryDelay(initial, max time.Duration, attempt int) time.Duration {
	if initial <= 0 || attempt < 1 {
		return 0
	}
	d := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
	if max > 0 && d > max {
		return max
	}
	return d
}
