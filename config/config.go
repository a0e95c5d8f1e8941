// Package config gathers the resilience settings from the environment into
// one value that the application owns and hands to every call site, rather
// than each package reading globals on its own.
//
//	settings, err := config.Load(ctx)
//	if err != nil {
//	    return err
//	}
//
//	iso := settings.NewIsolator()
//	resp, err := retry.Run(ctx, callModel, settings.RetryOptions()...)
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/amp-labs/amp-resilience/envutil"
	"github.com/amp-labs/amp-resilience/errors"
	"github.com/amp-labs/amp-resilience/isolator"
	"github.com/amp-labs/amp-resilience/logger"
	"github.com/amp-labs/amp-resilience/retry"
)

const (
	EnvConfigFile          = "RESILIENCE_CONFIG_FILE"
	EnvQuarantineThreshold = "RESILIENCE_QUARANTINE_THRESHOLD"
	EnvBaseQuarantine      = "RESILIENCE_BASE_QUARANTINE"
	EnvMaxQuarantine       = "RESILIENCE_MAX_QUARANTINE"
	EnvOperationTimeout    = "RESILIENCE_OPERATION_TIMEOUT"
	EnvBackoffJitter       = "RESILIENCE_BACKOFF_JITTER"
)

// Settings configures the retry engine and the isolator.
type Settings struct {
	// MaxRetries is how many times a failed call is retried.
	MaxRetries int
	// QuarantineThreshold is how many failures in a row quarantine a server.
	QuarantineThreshold uint
	// BaseQuarantine is the length of a server's first quarantine.
	BaseQuarantine time.Duration
	// MaxQuarantine caps the quarantine length.
	MaxQuarantine time.Duration
	// OperationTimeout bounds a single attempt. Zero means no bound.
	OperationTimeout time.Duration
	// BackoffJitter is the largest fraction of a backoff delay added on top
	// of it, between 0 and 1. Zero disables jitter.
	BackoffJitter float64
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		MaxRetries:          retry.DefaultMaxRetries,
		QuarantineThreshold: isolator.DefaultQuarantineThreshold,
		BaseQuarantine:      isolator.DefaultBaseQuarantine,
		MaxQuarantine:       isolator.DefaultMaxQuarantine,
		BackoffJitter:       float64(retry.DefaultJitter),
	}
}

// Load reads the settings from the environment. If RESILIENCE_CONFIG_FILE
// names a .env, .yaml or .json file, its variables fill in whatever the
// environment leaves unset.
//
// An invalid RESILIENCE_MAX_RETRIES only logs a warning and falls back to
// the default. Every other invalid setting is an error; all of them are
// reported together, wrapped in errors.ErrInvalidConfig.
func Load(ctx context.Context) (*Settings, error) {
	ctx, err := withConfigFile(ctx)
	if err != nil {
		return nil, err
	}

	dfl := Defaults()
	errs := &errors.Collection{}

	settings := &Settings{
		MaxRetries: retry.MaxRetriesFromEnv(ctx),
	}

	settings.QuarantineThreshold, err = envutil.Uint[uint](ctx, EnvQuarantineThreshold,
		envutil.Default(dfl.QuarantineThreshold),
		envutil.Validate(positive[uint])).Value()
	errs.AddField(EnvQuarantineThreshold, err)

	settings.BaseQuarantine, err = envutil.Duration(ctx, EnvBaseQuarantine,
		envutil.Default(dfl.BaseQuarantine),
		envutil.Validate(positive[time.Duration])).Value()
	errs.AddField(EnvBaseQuarantine, err)

	settings.MaxQuarantine, err = envutil.Duration(ctx, EnvMaxQuarantine,
		envutil.Default(dfl.MaxQuarantine),
		envutil.Validate(positive[time.Duration])).Value()
	errs.AddField(EnvMaxQuarantine, err)

	settings.OperationTimeout, err = envutil.Duration(ctx, EnvOperationTimeout,
		envutil.Default(dfl.OperationTimeout),
		envutil.Validate(nonNegative)).Value()
	errs.AddField(EnvOperationTimeout, err)

	settings.BackoffJitter, err = envutil.Float64(ctx, EnvBackoffJitter,
		envutil.Default(dfl.BackoffJitter),
		envutil.Validate(fraction)).Value()
	errs.AddField(EnvBackoffJitter, err)

	if !errs.HasError() && settings.BaseQuarantine > settings.MaxQuarantine {
		errs.AddField(EnvBaseQuarantine, fmt.Errorf("%w: %s is longer than %s %s",
			errors.ErrOutOfRange, settings.BaseQuarantine, EnvMaxQuarantine, settings.MaxQuarantine))
	}

	if errs.HasError() {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidConfig, errs.GetError())
	}

	logger.Get(ctx).Debug("loaded resilience settings",
		"max_retries", settings.MaxRetries,
		"quarantine_threshold", settings.QuarantineThreshold,
		"base_quarantine", settings.BaseQuarantine.String(),
		"max_quarantine", settings.MaxQuarantine.String(),
		"operation_timeout", settings.OperationTimeout.String(),
		"backoff_jitter", settings.BackoffJitter)

	return settings, nil
}

// withConfigFile layers the variables from RESILIENCE_CONFIG_FILE under
// the environment.
func withConfigFile(ctx context.Context) (context.Context, error) {
	path := envutil.String(ctx, EnvConfigFile).ValueOrElse("")
	if path == "" {
		return ctx, nil
	}

	vars, err := envutil.LoadEnvFile(path)
	if err != nil {
		return ctx, fmt.Errorf("%w: loading %s: %w", errors.ErrInvalidConfig, path, err)
	}

	unset := make(map[string]string, len(vars))

	for key, val := range vars {
		if !envutil.String(ctx, key).HasValue() {
			unset[key] = val
		}
	}

	return envutil.WithEnvOverrides(ctx, unset), nil
}

func positive[T uint | time.Duration](v T) error {
	if v <= 0 {
		return fmt.Errorf("%w: must be positive", errors.ErrOutOfRange)
	}

	return nil
}

func fraction(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: must be between 0 and 1", errors.ErrOutOfRange)
	}

	return nil
}

func nonNegative(v time.Duration) error {
	if v < 0 {
		return fmt.Errorf("%w: must not be negative", errors.ErrOutOfRange)
	}

	return nil
}

// RetryOptions returns the retry options matching the settings. Extra
// options are applied after them.
func (s *Settings) RetryOptions(extra ...retry.Option) []retry.Option {
	opts := []retry.Option{
		retry.WithMaxRetries(s.MaxRetries),
		retry.WithTimeout(retry.Timeout(s.OperationTimeout)),
		retry.WithBackoff(retry.Backoff{
			Base:   retry.DefaultBaseDelay,
			Max:    retry.DefaultMaxDelay,
			Jitter: retry.Jitter(s.BackoffJitter),
		}),
	}

	return append(opts, extra...)
}

// NewIsolator builds an Isolator from the settings. Extra options are
// applied after them.
func (s *Settings) NewIsolator(extra ...isolator.Option) *isolator.Isolator {
	opts := []isolator.Option{
		isolator.WithQuarantineThreshold(s.QuarantineThreshold),
		isolator.WithBaseQuarantine(s.BaseQuarantine),
		isolator.WithMaxQuarantine(s.MaxQuarantine),
	}

	return isolator.New(append(opts, extra...)...)
}
