package retry

import (
	"context"
	"time"
)

// Timeout is the deadline for a single attempt. An attempt that runs past it
// sees its context expire; the resulting context.DeadlineExceeded is a
// transient failure and is retried like any other.
//
// A zero Timeout means attempts are bounded only by the caller's context.
//
// Example:
//
//	runner := retry.NewRunner(
//	    retry.WithTimeout(retry.Timeout(30 * time.Second)),
//	)
type Timeout time.Duration

// attemptContext derives the context for one attempt.
func (t Timeout) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, time.Duration(t))
}
