// Package retry runs calls to unreliable dependencies, retrying transient
// failures with capped exponential backoff.
//
// Each failure is classified (see package classify). Non-retryable errors
// are returned immediately and untouched. Retryable ones are retried until
// the retry limit is used up, or until the dependency reports itself
// overloaded several times in a row; either way the caller gets an
// *ExhaustedError wrapping the last failure. Canceling the context stops
// the run at once, including mid-sleep, and returns ctx.Err().
//
// Basic usage:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//	    return client.Send(ctx, req)
//	})
//
// For operations that return values:
//
//	resp, err := retry.Run(ctx, func(ctx context.Context) (*Response, error) {
//	    return client.Complete(ctx, prompt)
//	}, retry.WithMaxRetries(3), retry.WithName("complete"))
//
// The function is called afresh on every attempt, so it must build whatever
// one-shot state it needs (request bodies, streams) inside the call.
//
// Without options the retry limit is DefaultMaxRetries. The environment is
// only consulted through MaxRetriesFromEnv, which the caller passes in:
//
//	err := retry.Do(ctx, send, retry.WithMaxRetries(retry.MaxRetriesFromEnv(ctx)))
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/amp-labs/amp-resilience/classify"
	"github.com/amp-labs/amp-resilience/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/amp-labs/amp-resilience/retry"

// Runner is an interface for executing operations with retry logic.
type Runner interface {
	Do(ctx context.Context, f func(ctx context.Context) error) error
}

// ValueRunner is a generic interface for executing operations that return a
// value with retry logic, returning the successful result or an error.
type ValueRunner[T any] interface {
	Do(ctx context.Context, f func(ctx context.Context) (T, error)) (T, error)
}

// NewRunner creates a new Runner with the specified options.
//
// The retry limit is never read from the environment implicitly. Pass
// WithMaxRetries(MaxRetriesFromEnv(ctx)) to honor RESILIENCE_MAX_RETRIES, or
// build the options from config.Settings.RetryOptions.
// If no options are provided, it uses these defaults:
//   - 10 retries (11 attempts in total)
//   - 3 consecutive overload signals end the run early
//   - Backoff from 500ms doubling up to 32s, plus up to 25% jitter
//   - The default classifier
//
// A Runner holds no state between calls and is safe for concurrent use.
//
// Example:
//
//	runner := retry.NewRunner(
//	    retry.WithMaxRetries(5),
//	    retry.WithTimeout(retry.Timeout(30 * time.Second)),
//	)
//	err := runner.Do(ctx, operation)
func NewRunner(opts ...Option) Runner {
	return &runnerImpl{
		opts: newOptions(opts),
	}
}

// NewValueRunner creates a new ValueRunner for operations that return a value.
// It uses the same defaults as NewRunner.
func NewValueRunner[T any](opts ...Option) ValueRunner[T] {
	return &valueRunnerImpl[T]{
		opts: newOptions(opts),
	}
}

func newOptions(opts []Option) *options {
	intOpts := defaultOptions()

	for _, option := range opts {
		option(intOpts)
	}

	return intOpts
}

// runnerImpl is the concrete implementation of the Runner interface.
type runnerImpl struct {
	opts *options
}

// Do executes the provided function with retry logic according to the runner's configuration.
func (r *runnerImpl) Do(ctx context.Context, f func(ctx context.Context) error) error {
	return do(ctx, r.opts, f)
}

// valueRunnerImpl is the concrete implementation of the ValueRunner interface.
type valueRunnerImpl[T any] struct {
	opts *options
}

// Do executes the provided function with retry logic according to the runner's configuration,
// returning the successful result or an error. On failure it returns the zero value of T.
func (v valueRunnerImpl[T]) Do(ctx context.Context, f func(ctx context.Context) (T, error)) (T, error) {
	var out T

	err := do(ctx, v.opts, func(ctx context.Context) error {
		var err error

		out, err = f(ctx)

		return err
	})
	if err != nil {
		var zero T

		return zero, err
	}

	return out, nil
}

// run is the state of one call to do.
type run struct {
	opts *options
	id   string
	log  *slog.Logger
	span trace.Span
}

// do is the core retry loop. After every failure the checks run in this
// order, and the first that applies ends the iteration:
//
//  1. the caller canceled: return ctx.Err()
//  2. the error is not retryable: return it as is
//  3. the retry limit is used up: return an ExhaustedError
//  4. too many overloads in a row: return an overloaded ExhaustedError
//  5. otherwise: sleep, then try again
func do(ctx context.Context, opts *options, operation func(ctx context.Context) error) error {
	tp := opts.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	r := &run{
		opts: opts,
		id:   uuid.NewString(),
	}

	ctx, r.span = tp.Tracer(tracerName).Start(ctx, "retry."+opts.name,
		trace.WithAttributes(
			attribute.String("retry.operation", opts.name),
			attribute.String("retry.run_id", r.id),
			attribute.Int("retry.max_retries", opts.maxRetries),
		))
	defer r.span.End()

	log := opts.logger
	if log == nil {
		log = logger.Get(ctx)
	}

	r.log = log.With("operation", opts.name, "run_id", r.id)

	consecutiveOverloads := 0

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return r.canceled(attempt-1, err)
		}

		err := r.attempt(ctx, attempt, operation)
		if err == nil {
			return r.succeeded(ctx, attempt)
		}

		// An attempt that failed because the caller gave up is not a
		// dependency failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.canceled(attempt, ctxErr)
		}

		res := opts.classifier.Classify(err)
		if !res.Retryable {
			return r.fatal(attempt, err)
		}

		attemptsTotal.WithLabelValues(opts.name, outcomeRetryable).Inc()

		if attempt > opts.maxRetries {
			return r.exhausted(&ExhaustedError{Attempts: attempt, Cause: err})
		}

		if res.Overloaded {
			consecutiveOverloads++
		} else {
			consecutiveOverloads = 0
		}

		if consecutiveOverloads >= opts.overloadLimit {
			return r.exhausted(&ExhaustedError{
				Attempts:    attempt,
				Cause:       err,
				Overloaded:  true,
				Consecutive: consecutiveOverloads,
			})
		}

		retryAfter, _ := res.RetryAfterHint()
		delay := opts.backoff.Compute(attempt, retryAfter)

		r.retrying(ctx, RetryEvent{
			Err:        err,
			Attempt:    attempt,
			Delay:      delay,
			MaxRetries: opts.maxRetries,
		}, res)

		if err := sleep(ctx, delay); err != nil {
			return r.canceled(attempt, err)
		}
	}
}

func (r *run) attempt(ctx context.Context, attempt int, operation func(ctx context.Context) error) error {
	ctx, cancel := r.opts.timeout.attemptContext(withAttempt(ctx, attempt))
	defer cancel()

	return operation(ctx)
}

func (r *run) succeeded(ctx context.Context, attempts int) error {
	attemptsTotal.WithLabelValues(r.opts.name, outcomeSuccess).Inc()
	r.finish(attempts, outcomeSuccess)

	if attempts > 1 {
		recoveredTotal.WithLabelValues(r.opts.name).Inc()
		r.log.Info("operation recovered after retries", "attempts", attempts)

		if obs := r.opts.observer; obs != nil {
			notify(r.log, "OnRetryEnd", func() {
				obs.OnRetryEnd(ctx, attempts)
			})
		}
	}

	return nil
}

func (r *run) retrying(ctx context.Context, event RetryEvent, res classify.Result) {
	r.log.Warn("operation failed, retrying",
		"attempt", event.Attempt,
		"max_retries", event.MaxRetries,
		"delay_ms", event.DelayMs(),
		"overloaded", res.Overloaded,
		"error", event.Err)

	r.span.AddEvent("retry", trace.WithAttributes(
		attribute.Int("retry.attempt", event.Attempt),
		attribute.Int64("retry.delay_ms", event.DelayMs()),
		attribute.Bool("retry.overloaded", res.Overloaded),
		attribute.String("error", event.Err.Error()),
	))

	backoffSeconds.WithLabelValues(r.opts.name).Observe(event.Delay.Seconds())

	if obs := r.opts.observer; obs != nil {
		notify(r.log, "OnRetryStart", func() {
			obs.OnRetryStart(ctx, event)
		})
	}
}

func (r *run) fatal(attempts int, err error) error {
	attemptsTotal.WithLabelValues(r.opts.name, outcomeFatal).Inc()
	r.log.Debug("operation failed with a non-retryable error",
		"attempt", attempts,
		"error", err)
	r.fail(attempts, outcomeFatal, err)

	return err
}

func (r *run) exhausted(err *ExhaustedError) error {
	reason := reasonExhausted
	if err.Overloaded {
		reason = reasonOverloaded
	}

	exhaustedTotal.WithLabelValues(r.opts.name, reason).Inc()
	r.log.Error("giving up on operation",
		"attempts", err.Attempts,
		"reason", reason,
		"error", err.Cause)
	r.fail(err.Attempts, reason, err)

	return err
}

func (r *run) canceled(attempts int, err error) error {
	if attempts > 0 {
		attemptsTotal.WithLabelValues(r.opts.name, outcomeCanceled).Inc()
	}

	r.fail(attempts, outcomeCanceled, err)

	return err
}

func (r *run) fail(attempts int, outcome string, err error) {
	r.finish(attempts, outcome)
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, err.Error())
}

func (r *run) finish(attempts int, outcome string) {
	r.span.SetAttributes(
		attribute.Int("retry.attempts", attempts),
		attribute.String("retry.outcome", outcome),
	)
}

// sleep waits for d, returning early with ctx.Err() if ctx is canceled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do is a convenience function that creates a Runner and executes the provided function
// with retry logic in a single call. It uses the default configuration unless options are provided.
//
// Example:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//	    return makeAPICall(ctx)
//	}, retry.WithMaxRetries(5))
func Do(ctx context.Context, f func(ctx context.Context) error, opts ...Option) error {
	return NewRunner(opts...).Do(ctx, f)
}

// Run is a convenience function that creates a ValueRunner and executes the provided function
// with retry logic in a single call. It uses the default configuration unless options are provided.
//
// Example:
//
//	result, err := retry.Run(ctx, func(ctx context.Context) (string, error) {
//	    return fetchData(ctx)
//	}, retry.WithMaxRetries(5))
func Run[T any](ctx context.Context, f func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	return NewValueRunner[T](opts...).Do(ctx, f)
}

// IsExhausted reports whether err is an ExhaustedError.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}
