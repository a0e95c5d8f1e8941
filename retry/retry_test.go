package retry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/amp-labs/amp-resilience/classify"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/atomic"
)

var errFlaky = errors.New("flaky dependency") //nolint:gochecknoglobals

func transient() error {
	return classify.Transient(errFlaky)
}

func overloaded() error {
	return &classify.APIError{Status: classify.StatusOverloaded, Body: "overloaded"}
}

// fast keeps the real backoff shape but with tiny delays.
func fast(t *testing.T) []Option {
	t.Helper()

	return []Option{
		WithBackoff(Backoff{Base: time.Millisecond, Max: 2 * time.Millisecond, Jitter: WithoutJitter}),
		WithLogger(slogt.New(t)),
	}
}

type recordingObserver struct {
	starts []RetryEvent
	ends   []int
}

func (r *recordingObserver) OnRetryStart(_ context.Context, event RetryEvent) {
	r.starts = append(r.starts, event)
}

func (r *recordingObserver) OnRetryEnd(_ context.Context, totalAttempts int) {
	r.ends = append(r.ends, totalAttempts)
}

func TestDo_Success(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++

		return nil
	}, append(fast(t), WithObserver(obs))...)

	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
	assert.Empty(t, obs.starts)
	assert.Empty(t, obs.ends, "no recovery without a retry")
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++
		if callCount < 3 {
			return transient()
		}

		return nil
	}, append(fast(t), WithMaxRetries(3), WithObserver(obs))...)

	require.NoError(t, err)
	assert.Equal(t, 3, callCount)
	require.Len(t, obs.starts, 2)
	assert.Equal(t, []int{3}, obs.ends)

	assert.Equal(t, 1, obs.starts[0].Attempt)
	assert.Equal(t, 2, obs.starts[1].Attempt)
	assert.Equal(t, 3, obs.starts[0].MaxRetries)
	require.ErrorIs(t, obs.starts[0].Err, errFlaky)
	assert.Equal(t, time.Millisecond, obs.starts[0].Delay)
	assert.Equal(t, 2*time.Millisecond, obs.starts[1].Delay)
}

func TestDo_FatalErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	badRequest := &classify.APIError{Status: http.StatusBadRequest, Body: "bad request"}

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++

		return badRequest
	}, append(fast(t), WithMaxRetries(5), WithObserver(obs))...)

	require.Error(t, err)
	assert.Same(t, badRequest, err, "fatal errors are returned untouched") //nolint:testifylint
	assert.Equal(t, 1, callCount)
	assert.Empty(t, obs.starts)
	assert.False(t, IsExhausted(err))
}

func TestDo_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++

		return transient()
	}, append(fast(t), WithMaxRetries(2))...)

	require.Error(t, err)
	assert.Equal(t, 3, callCount, "one attempt plus two retries")

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.False(t, exhausted.Overloaded)
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, errFlaky)
	assert.NotErrorIs(t, err, ErrOverloaded)
}

func TestDo_ZeroRetries(t *testing.T) {
	t.Parallel()

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++

		return transient()
	}, append(fast(t), WithMaxRetries(-4))...)

	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, callCount)
}

func TestDo_OverloadAbort(t *testing.T) {
	t.Parallel()

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++

		return overloaded()
	}, append(fast(t), WithMaxRetries(10))...)

	require.Error(t, err)
	assert.Equal(t, 3, callCount, "no fourth attempt")
	require.ErrorIs(t, err, ErrOverloaded)
	require.ErrorIs(t, err, ErrExhausted)
	assert.Contains(t, err.Error(), "3 consecutive overloaded errors")
}

func TestDo_OverloadCounterResets(t *testing.T) {
	t.Parallel()

	script := []error{overloaded(), overloaded(), transient(), overloaded(), overloaded(), nil}

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		err := script[callCount]
		callCount++

		return err
	}, append(fast(t), WithMaxRetries(10))...)

	require.NoError(t, err)
	assert.Equal(t, len(script), callCount)
}

func TestDo_ExhaustionBeatsOverloadAbort(t *testing.T) {
	t.Parallel()

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++

		return overloaded()
	}, append(fast(t), WithMaxRetries(2))...)

	require.ErrorIs(t, err, ErrExhausted)
	require.NotErrorIs(t, err, ErrOverloaded)
	assert.Equal(t, 3, callCount)
}

func TestDo_CustomOverloadLimit(t *testing.T) {
	t.Parallel()

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++

		return overloaded()
	}, append(fast(t), WithOverloadLimit(5))...)

	require.ErrorIs(t, err, ErrOverloaded)
	assert.Equal(t, 5, callCount)
	assert.Contains(t, err.Error(), "5 consecutive overloaded errors")
}

func TestDo_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())

	// Cancel immediately
	cancel()

	callCount := 0
	err := Do(ctx, func(ctx context.Context) error {
		callCount++

		return transient()
	}, fast(t)...)

	assert.Equal(t, context.Canceled, err) //nolint:testifylint
	assert.Equal(t, 0, callCount)
}

func TestDo_CancelDuringSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	obs := ObserverFuncs{
		RetryStart: func(context.Context, RetryEvent) { cancel() },
	}

	start := time.Now()
	callCount := 0
	err := Do(ctx, func(ctx context.Context) error {
		callCount++

		return transient()
	}, WithBackoff(Backoff{Base: time.Hour, Max: time.Hour}), WithObserver(obs), WithLogger(slogt.New(t)))

	assert.Equal(t, context.Canceled, err) //nolint:testifylint
	assert.Equal(t, 1, callCount)
	assert.Less(t, time.Since(start), 5*time.Second, "the sleep was cut short")
}

func TestDo_CancelDuringAttempt(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	err := Do(ctx, func(ctx context.Context) error {
		cancel()

		return classify.Transient(errors.New("aborted read")) //nolint:err113 // Test error
	}, fast(t)...)

	assert.Equal(t, context.Canceled, err, "cancellation is never retried") //nolint:testifylint
}

func TestDo_RetryAfterHint(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	limited := &classify.APIError{
		Status:  http.StatusTooManyRequests,
		Headers: http.Header{classify.HeaderRetryAfterMs: []string{"3"}},
	}

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++
		if callCount == 1 {
			return limited
		}

		return nil
	}, WithBackoff(Backoff{Base: time.Hour, Max: time.Hour}), WithObserver(obs), WithLogger(slogt.New(t)))

	require.NoError(t, err)
	require.Len(t, obs.starts, 1)
	assert.Equal(t, 3*time.Millisecond, obs.starts[0].Delay)
	assert.Equal(t, int64(3), obs.starts[0].DelayMs())
}

func TestDo_WithTimeout(t *testing.T) {
	t.Parallel()

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++
		if callCount == 1 {
			// First attempt: wait for the attempt deadline
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return errors.New("timeout didn't work") //nolint:err113 // Test error
			}
		}
		// Second attempt: succeed immediately
		return nil
	}, append(fast(t), WithMaxRetries(2), WithTimeout(Timeout(30*time.Millisecond)))...)

	require.NoError(t, err, "should succeed on second attempt")
	assert.Equal(t, 2, callCount, "should have attempted twice")
}

func TestDo_RespectsContextDeadline(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	callCount := atomic.NewInt64(0)
	err := Do(ctx, func(ctx context.Context) error {
		callCount.Inc()

		_ = sleep(ctx, 30*time.Millisecond)

		return transient()
	}, append(fast(t), WithMaxRetries(10))...)

	assert.Equal(t, context.DeadlineExceeded, err) //nolint:testifylint
	// Should have attempted at least once but not all 11 times
	assert.GreaterOrEqual(t, callCount.Load(), int64(1))
	assert.Less(t, callCount.Load(), int64(11))
}

func TestDo_ObserverPanicIsContained(t *testing.T) {
	t.Parallel()

	obs := ObserverFuncs{
		RetryStart: func(context.Context, RetryEvent) { panic("observer bug") },
		RetryEnd:   func(context.Context, int) { panic("observer bug") },
	}

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++
		if callCount < 2 {
			return transient()
		}

		return nil
	}, append(fast(t), WithObserver(obs))...)

	require.NoError(t, err)
	assert.Equal(t, 2, callCount)
}

func TestDo_ObserverPanicGoesToRunLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	obs := ObserverFuncs{
		RetryStart: func(context.Context, RetryEvent) { panic("observer bug") },
	}

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++
		if callCount < 2 {
			return transient()
		}

		return nil
	},
		WithBackoff(Backoff{Base: time.Millisecond, Max: time.Millisecond, Jitter: WithoutJitter}),
		WithObserver(obs),
		WithName("complete"),
		WithLogger(log),
	)

	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "retry observer panicked")
	assert.Contains(t, out, "hook=OnRetryStart")
	assert.Contains(t, out, "operation=complete")
	assert.Contains(t, out, "run_id=")
}

func TestDo_CustomClassifier(t *testing.T) {
	t.Parallel()

	retryAll := classify.New(func(error) (bool, bool) { return true, true })

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++
		if callCount < 3 {
			return errors.New("plain error") //nolint:err113 // Test error
		}

		return nil
	}, append(fast(t), WithClassifier(retryAll))...)

	require.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestDo_UnknownErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++

		return errors.New("plain error") //nolint:err113 // Test error
	}, fast(t)...)

	require.Error(t, err)
	assert.Equal(t, 1, callCount)
}

func TestRun_Success(t *testing.T) {
	t.Parallel()

	result, err := Run(t.Context(), func(ctx context.Context) (string, error) {
		return "success", nil
	}, fast(t)...)

	require.NoError(t, err)
	assert.Equal(t, "success", result)
}

func TestRun_SuccessAfterRetries(t *testing.T) {
	t.Parallel()

	callCount := 0
	result, err := Run(t.Context(), func(ctx context.Context) (int, error) {
		callCount++
		if callCount < 3 {
			return -1, transient()
		}

		return 42, nil
	}, fast(t)...)

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, callCount)
}

func TestRun_ZeroValueOnError(t *testing.T) {
	t.Parallel()

	result, err := Run(t.Context(), func(ctx context.Context) (string, error) {
		return "partial", transient()
	}, append(fast(t), WithMaxRetries(1))...)

	require.ErrorIs(t, err, ErrExhausted)
	assert.Empty(t, result, "should return zero value on error")
}

func TestNewValueRunner_Reusable(t *testing.T) {
	t.Parallel()

	runner := NewValueRunner[string](fast(t)...)

	for range 3 {
		calls := 0
		result, err := runner.Do(t.Context(), func(ctx context.Context) (string, error) {
			calls++
			if calls < 2 {
				return "", transient()
			}

			return "done", nil
		})

		require.NoError(t, err)
		assert.Equal(t, "done", result)
		assert.Equal(t, 2, calls, "runs do not share state")
	}
}

func TestDo_RecordsSpan(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++
		if callCount < 3 {
			return transient()
		}

		return nil
	}, append(fast(t), WithName("complete"), WithTracerProvider(tp))...)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "retry.complete", span.Name)
	require.Len(t, span.Events, 2)
	assert.Equal(t, "retry", span.Events[0].Name)

	attrs := attributeMap(span.Attributes)
	assert.Equal(t, int64(3), attrs["retry.attempts"].AsInt64())
	assert.Equal(t, outcomeSuccess, attrs["retry.outcome"].AsString())
	assert.NotEmpty(t, attrs["retry.run_id"].AsString())
	assert.NotEqual(t, codes.Error, span.Status.Code)
}

func TestDo_SpanMarksFailure(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	err := Do(t.Context(), func(ctx context.Context) error {
		return overloaded()
	}, append(fast(t), WithName("overloaded"), WithTracerProvider(tp))...)
	require.ErrorIs(t, err, ErrOverloaded)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, reasonOverloaded, attributeMap(spans[0].Attributes)["retry.outcome"].AsString())
}

func attributeMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}

	return out
}
