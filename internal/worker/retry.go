package worker

import (
	"math/rand"
	"time"
)

// RetryPolicy defines exponential backoff parameters with jitter.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxExponent int
	// JitterFrac spreads the delay uniformly within ±frac of the
	// exponential term to avoid synchronized retry storms.
	JitterFrac float64
}

// NextDelay returns the delay before retrying after n consecutive
// failures on the same item: min(base*2^min(n,maxExponent), maxDelay)
// randomized within the jitter band.
func (r RetryPolicy) NextDelay(consecutiveFailures int) time.Duration {
	if r.BaseDelay <= 0 {
		r.BaseDelay = 2 * time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = 5 * time.Minute
	}
	if r.MaxExponent <= 0 {
		r.MaxExponent = 6
	}
	if r.JitterFrac == 0 {
		r.JitterFrac = 0.2
	}

	exp := consecutiveFailures
	if exp < 0 {
		exp = 0
	}
	if exp > r.MaxExponent {
		exp = r.MaxExponent
	}

	delay := r.BaseDelay << uint(exp)
	if delay > r.MaxDelay {
		delay = r.MaxDelay
	}

	jitter := time.Duration((rand.Float64()*2 - 1) * r.JitterFrac * float64(delay))
	return delay + jitter
}
