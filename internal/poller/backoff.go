package poller

import "time"

// Backoff decides how long the loop sleeps between iterations.
type Backoff struct {
	// Interval is the idle sleep when a queue is empty.
	Interval time.Duration
	// ErrorDelay follows a failed iteration.
	ErrorDelay time.Duration
	// LongDelay replaces ErrorDelay once Threshold consecutive failures
	// accumulate; the failure counter then starts over.
	LongDelay time.Duration
	Threshold int
}

// DefaultBackoff polls every 5s, waits 10s after an error and 60s after
// five errors in a row.
func DefaultBackoff() Backoff {
	return Backoff{
		Interval:   5 * time.Second,
		ErrorDelay: 10 * time.Second,
		LongDelay:  60 * time.Second,
		Threshold:  5,
	}
}

// FromSeconds builds a Backoff from config values, keeping defaults for
// non-positive inputs.
func FromSeconds(interval, errorDelay, longDelay, threshold int) Backoff {
	b := DefaultBackoff()
	if interval > 0 {
		b.Interval = time.Duration(interval) * time.Second
	}
	if errorDelay > 0 {
		b.ErrorDelay = time.Duration(errorDelay) * time.Second
	}
	if longDelay > 0 {
		b.LongDelay = time.Duration(longDelay) * time.Second
	}
	if threshold > 0 {
		b.Threshold = threshold
	}
	return b
}

// OnError returns the delay after the given number of consecutive failures
// (including the current one) and whether the counter should reset.
func (b Backoff) OnError(consecutive int) (time.Duration, bool) {
	if consecutive >= b.Threshold {
		return b.LongDelay, true
	}
	return b.ErrorDelay, false
}
