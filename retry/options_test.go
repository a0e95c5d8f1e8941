package retry

import (
	"context"
	"testing"
	"time"

	"github.com/amp-labs/amp-resilience/classify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := newOptions(nil)

	assert.Equal(t, DefaultMaxRetries, opts.maxRetries)
	assert.Equal(t, DefaultOverloadLimit, opts.overloadLimit)
	assert.Equal(t, DefaultBackoff(), opts.backoff)
	assert.Same(t, classify.Default(), opts.classifier)
	assert.Equal(t, "operation", opts.name)
	assert.Nil(t, opts.observer)
	assert.Zero(t, opts.timeout)
}

func TestWithMaxRetries_Option(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 7, newOptions([]Option{WithMaxRetries(7)}).maxRetries)
	assert.Equal(t, 0, newOptions([]Option{WithMaxRetries(-1)}).maxRetries)

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++

		return transient()
	}, append(fast(t), WithMaxRetries(6))...)

	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 7, callCount)
}

func TestWithOverloadLimit_Option(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, newOptions([]Option{WithOverloadLimit(1)}).overloadLimit)
	assert.Equal(t, DefaultOverloadLimit, newOptions([]Option{WithOverloadLimit(0)}).overloadLimit)
}

func TestWithBackoff_Option(t *testing.T) {
	t.Parallel()

	custom := Backoff{
		Base:   50 * time.Millisecond,
		Max:    500 * time.Millisecond,
		Jitter: WithoutJitter,
	}

	callTimes := []time.Time{}
	err := Do(t.Context(), func(ctx context.Context) error {
		callTimes = append(callTimes, time.Now())
		if len(callTimes) < 3 {
			return transient()
		}

		return nil
	}, WithBackoff(custom))

	require.NoError(t, err)
	require.Len(t, callTimes, 3)

	// Check that delays grow
	delay1 := callTimes[1].Sub(callTimes[0])
	delay2 := callTimes[2].Sub(callTimes[1])

	assert.GreaterOrEqual(t, delay1.Milliseconds(), int64(50), "first delay should be >= 50ms")
	assert.GreaterOrEqual(t, delay2.Milliseconds(), int64(100), "second delay should be >= 100ms")
}

func TestWithClassifier_IgnoresNil(t *testing.T) {
	t.Parallel()

	assert.Same(t, classify.Default(), newOptions([]Option{WithClassifier(nil)}).classifier)
}

func TestWithName_IgnoresEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "operation", newOptions([]Option{WithName("")}).name)
	assert.Equal(t, "complete", newOptions([]Option{WithName("complete")}).name)
}

func TestOptions_LastWins(t *testing.T) {
	t.Parallel()

	opts := newOptions([]Option{WithMaxRetries(1), WithMaxRetries(4), WithTimeout(Timeout(time.Second))})

	assert.Equal(t, 4, opts.maxRetries)
	assert.Equal(t, Timeout(time.Second), opts.timeout)
}
