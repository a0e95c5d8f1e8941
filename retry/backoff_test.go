package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DelayWithoutJitter(t *testing.T) {
	t.Parallel()

	backoff := Backoff{
		Base:   100 * time.Millisecond,
		Max:    2 * time.Second,
		Jitter: WithoutJitter,
	}

	tests := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{"first attempt", 1, 100 * time.Millisecond},
		{"second attempt", 2, 200 * time.Millisecond},
		{"third attempt", 3, 400 * time.Millisecond},
		{"fourth attempt", 4, 800 * time.Millisecond},
		{"fifth attempt", 5, 1600 * time.Millisecond},
		{"sixth attempt (hits max)", 6, 2 * time.Second},
		{"tenth attempt (still capped)", 10, 2 * time.Second},
		{"huge attempt (no overflow)", 5000, 2 * time.Second},
		{"zero attempt treated as first", 0, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, backoff.Compute(tt.attempt, 0))
		})
	}
}

func TestDefaultBackoff_Ranges(t *testing.T) {
	t.Parallel()

	backoff := DefaultBackoff()

	tests := []struct {
		attempt  int
		min, max time.Duration
	}{
		{1, 500 * time.Millisecond, 625 * time.Millisecond},
		{2, time.Second, 1250 * time.Millisecond},
		{3, 2 * time.Second, 2500 * time.Millisecond},
		{7, 32 * time.Second, 40 * time.Second},
		{10, 32 * time.Second, 40 * time.Second},
	}

	for _, tt := range tests {
		for range 200 {
			d := backoff.Compute(tt.attempt, 0)

			assert.GreaterOrEqual(t, d, tt.min, "attempt %d", tt.attempt)
			assert.LessOrEqual(t, d, tt.max, "attempt %d", tt.attempt)
		}
	}
}

func TestBackoff_RetryAfterIsAuthoritative(t *testing.T) {
	t.Parallel()

	backoff := DefaultBackoff()

	for _, attempt := range []int{1, 2, 7, 10} {
		assert.Equal(t, 5*time.Second, backoff.Compute(attempt, 5*time.Second))
	}

	assert.Equal(t, 5*time.Minute, backoff.Compute(1, 5*time.Minute), "not capped at Max")
}

func TestBackoff_NonPositiveRetryAfterFallsBack(t *testing.T) {
	t.Parallel()

	backoff := Backoff{Base: time.Second, Max: time.Minute, Jitter: WithoutJitter}

	assert.Equal(t, 2*time.Second, backoff.Compute(2, 0))
	assert.Equal(t, 2*time.Second, backoff.Compute(2, -3*time.Second))
}

func TestBackoff_ZeroValueUsesDefaults(t *testing.T) {
	t.Parallel()

	var backoff Backoff

	assert.Equal(t, DefaultBaseDelay, backoff.Compute(1, 0))
	assert.Equal(t, DefaultMaxDelay, backoff.Compute(20, 0))
}
