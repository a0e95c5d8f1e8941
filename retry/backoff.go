package retry

import (
	"math"
	"time"
)

const (
	// DefaultBaseDelay is the delay before the first retry.
	DefaultBaseDelay = 500 * time.Millisecond
	// DefaultMaxDelay caps the exponential delay, before jitter.
	DefaultMaxDelay = 32 * time.Second
)

// Backoff computes the wait between attempts: the delay doubles with each
// attempt starting at Base, is capped at Max, and then grows by a random
// amount of up to Jitter times itself.
//
// Example:
//
//	b := retry.Backoff{Base: 500 * time.Millisecond, Max: 32 * time.Second, Jitter: 0.25}
//	// Delays before jitter: 500ms, 1s, 2s, 4s, 8s, 16s, 32s, 32s, ...
type Backoff struct {
	// Base is the delay after the first failed attempt.
	Base time.Duration
	// Max is the largest delay before jitter is added.
	Max time.Duration
	// Jitter is the largest fraction of the delay added on top of it.
	Jitter Jitter
}

// DefaultBackoff returns 500ms doubling up to 32s, plus up to 25% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   DefaultBaseDelay,
		Max:    DefaultMaxDelay,
		Jitter: DefaultJitter,
	}
}

// Compute returns the wait before the attempt after the given one. attempt
// is 1-based: Compute(1, 0) is the wait after the first failure.
//
// A positive retryAfter is the dependency telling us how long to wait, and
// is returned as is, with no cap and no jitter.
func (b Backoff) Compute(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}

	return b.Jitter.apply(b.delay(attempt))
}

// delay is min(Base * 2^(attempt-1), Max).
func (b Backoff) delay(attempt int) time.Duration {
	base, maxDelay := b.Base, b.Max
	if base <= 0 {
		base = DefaultBaseDelay
	}

	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	if attempt < 1 {
		attempt = 1
	}

	f := float64(base) * math.Pow(2, float64(attempt-1))
	if f >= float64(maxDelay) {
		return maxDelay
	}

	return time.Duration(f)
}
