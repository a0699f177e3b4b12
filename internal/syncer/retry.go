package syncer

import (
	"math"
	"time"
)

// RetryPolicy defines optional exponential backoff between delivery
// attempts. The zero value disables backoff entirely: failed entries are
// simply attempted again on the next trigger (reconnect, enqueue, manual
// sync), which matches the queue's original behavior.
type RetryPolicy struct {
	Enabled       bool
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextAttemptAt returns when the given attempt (1-based) may run again, or
// nil when backoff is disabled.
func (r RetryPolicy) NextAttemptAt(attempt int) *time.Time {
	if !r.Enabled {
		return nil
	}
	if attempt < 1 {
		attempt = 1
	}

	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	delay := time.Duration(float64(initial) * math.Pow(factor, float64(attempt-1)))
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	if delay <= 0 {
		delay = time.Second
	}

	at := time.Now().Add(delay)
	return &at
}
