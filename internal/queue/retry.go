package queue

import (
	"math"
	"math/rand"
	"time"
)

// backoffDelay computes the exponential-backoff-with-jitter re-entry delay
// for a folder's retryCount-th failed run, following the same shape as the
// teacher's provider-call retry (internal/providers/retry.go's
// computeDelay), generalized from HTTP status codes to sandbox exit kinds:
// base * 2^(retryCount-1), capped at maxDelay, jittered by ±10%.
func backoffDelay(base, maxDelay time.Duration, retryCount int) time.Duration {
	delay := float64(base) * math.Pow(2, float64(retryCount-1))
	if time.Duration(delay) > maxDelay {
		delay = float64(maxDelay)
	}
	jitter := delay * 0.1
	delay += (rand.Float64()*2 - 1) * jitter
	if delay < 0 {
		delay = float64(base)
	}
	return time.Duration(delay)
}
