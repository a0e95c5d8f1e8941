package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryEvent describes a failed attempt that is about to be retried.
type RetryEvent struct {
	// Err is the error that triggered the retry.
	Err error
	// Attempt is the 1-based number of the attempt that failed.
	Attempt int
	// Delay is how long the engine will sleep before the next attempt.
	Delay time.Duration
	// MaxRetries is the configured retry limit.
	MaxRetries int
}

// DelayMs returns the delay in whole milliseconds.
func (e RetryEvent) DelayMs() int64 {
	return e.Delay.Milliseconds()
}

// Observer is notified about retries, typically to drive telemetry or a UI.
// Notifications are best effort: an observer that panics is logged and
// otherwise ignored.
type Observer interface {
	// OnRetryStart runs before each backoff sleep.
	OnRetryStart(ctx context.Context, event RetryEvent)
	// OnRetryEnd runs after a success that needed at least one retry.
	OnRetryEnd(ctx context.Context, totalAttempts int)
}

// ObserverFuncs adapts a pair of functions to Observer. Either may be nil.
//
//	retry.WithObserver(retry.ObserverFuncs{
//	    RetryStart: func(ctx context.Context, ev retry.RetryEvent) {
//	        ui.Status("retrying in %dms", ev.DelayMs())
//	    },
//	})
type ObserverFuncs struct {
	RetryStart func(ctx context.Context, event RetryEvent)
	RetryEnd   func(ctx context.Context, totalAttempts int)
}

func (o ObserverFuncs) OnRetryStart(ctx context.Context, event RetryEvent) {
	if o.RetryStart != nil {
		o.RetryStart(ctx, event)
	}
}

func (o ObserverFuncs) OnRetryEnd(ctx context.Context, totalAttempts int) {
	if o.RetryEnd != nil {
		o.RetryEnd(ctx, totalAttempts)
	}
}

// notify calls fn and swallows a panic from it, logging it to log.
func notify(log *slog.Logger, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("retry observer panicked",
				"hook", hook,
				"panic", fmt.Sprint(r))
		}
	}()

	fn()
}
