package queue

import (
	"testing"
	"time"
)

func TestBackoffDelayGrowsWithRetryCount(t *testing.T) {
	base := 100 * time.Millisecond
	maxDelay := 10 * time.Second

	var last time.Duration
	for retry := 1; retry <= 5; retry++ {
		// One draw per retryCount; jitter makes any single draw noisy, so
		// only require it not to fall below half of the previous draw.
		d := backoffDelay(base, maxDelay, retry)
		if d <= 0 {
			t.Fatalf("retry %d: expected a positive delay, got %v", retry, d)
		}
		if retry > 1 && d < last/2 {
			t.Fatalf("retry %d: delay %v unexpectedly smaller than retry %d's %v", retry, d, retry-1, last)
		}
		last = d
	}
}

func TestBackoffDelayCapsAtMaxDelay(t *testing.T) {
	base := 100 * time.Millisecond
	maxDelay := 500 * time.Millisecond

	d := backoffDelay(base, maxDelay, 20)
	// ±10% jitter around the cap.
	if d > maxDelay+maxDelay/10+time.Millisecond {
		t.Fatalf("expected delay near the cap of %v, got %v", maxDelay, d)
	}
}

func TestBackoffDelayNeverNegative(t *testing.T) {
	for retry := 1; retry <= 30; retry++ {
		if d := backoffDelay(50*time.Millisecond, time.Second, retry); d < 0 {
			t.Fatalf("retry %d: delay went negative: %v", retry, d)
		}
	}
}
