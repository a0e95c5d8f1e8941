package retry

import (
	"context"
	"errors"

	"github.com/amp-labs/amp-resilience/envutil"
	"github.com/amp-labs/amp-resilience/logger"
)

const (
	// EnvMaxRetries overrides the retry limit.
	EnvMaxRetries = "RESILIENCE_MAX_RETRIES"

	// DefaultMaxRetries is used when EnvMaxRetries is unset or invalid.
	DefaultMaxRetries = 10
)

var errNegative = errors.New("must not be negative")

// MaxRetriesFromEnv reads EnvMaxRetries. A missing value gives
// DefaultMaxRetries; so does a malformed or negative one, after a warning.
func MaxRetriesFromEnv(ctx context.Context) int {
	n, err := envutil.Int[int](ctx, EnvMaxRetries,
		envutil.Default(DefaultMaxRetries),
		envutil.Validate(func(v int) error {
			if v < 0 {
				return errNegative
			}

			return nil
		})).Value()
	if err != nil {
		logger.Get(ctx).Warn("invalid max retries, using default",
			"key", EnvMaxRetries,
			"default", DefaultMaxRetries,
			"error", err)

		return DefaultMaxRetries
	}

	return n
}
