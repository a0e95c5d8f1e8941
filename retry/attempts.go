package retry

import "context"

// ctxKey is the type for context keys used internally to avoid collisions.
type ctxKey string

// attemptKey is the context key used to store and retrieve the current attempt number.
const attemptKey ctxKey = "attempt"

// withAttempt adds the attempt number to the context, so the operation
// being retried knows which attempt it is on.
func withAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey, attempt)
}

// Attempt returns the 1-based number of the attempt running with ctx, or 0
// outside of a retry loop.
//
// Example:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//	    logger.Get(ctx).Debug("calling model", "attempt", retry.Attempt(ctx))
//	    return callModel(ctx)
//	})
func Attempt(ctx context.Context) int {
	attemptNum, ok := ctx.Value(attemptKey).(int)
	if !ok {
		return 0
	}

	return attemptNum
}
