package retry

import (
	"math/rand"
	"time"
)

// Jitter is the largest fraction of a backoff delay that may be added on
// top of it. Spreading retries out this way keeps many callers that failed
// together from retrying together.
//
//   - 0.25: the delay grows by a random 0-25%
//   - 0 or negative: no jitter
type Jitter float64

// DefaultJitter adds up to a quarter of the delay.
const DefaultJitter Jitter = 0.25

// WithoutJitter disables jitter entirely. Useful in tests that need exact
// delays.
const WithoutJitter Jitter = -1.0

// apply returns d plus a uniformly random amount in [0, j*d].
func (j Jitter) apply(d time.Duration) time.Duration {
	if j <= 0 || d <= 0 {
		return d
	}

	//nolint:gosec // G404: math/rand is sufficient for jitter; crypto/rand is unnecessary overhead
	extra := rand.Float64() * float64(j) * float64(d)

	return d + time.Duration(extra)
}
