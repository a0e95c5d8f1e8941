// Package envutil reads typed configuration from environment variables.
//
// Every reader takes a context so that values can be overridden per call
// tree (see WithEnvOverride) instead of through os.Setenv:
//
//	retries := envutil.Int[int](ctx, "RESILIENCE_MAX_RETRIES",
//	    envutil.Default(10)).ValueOrElse(10)
package envutil

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// get looks the key up in the context overrides first, then the environment.
// An empty or blank value reads as unset, and an empty override hides the
// environment.
func get(ctx context.Context, key string) Reader[string] {
	val, ok := getEnvOverride(ctx, key)
	if !ok {
		val, ok = os.LookupEnv(key)
	}

	if strings.TrimSpace(val) == "" {
		return Reader[string]{key: key}
	}

	return Reader[string]{
		key:     key,
		present: ok,
		value:   val,
	}
}

func apply[T any](rdr Reader[T], opts []Option[T]) Reader[T] {
	for _, opt := range opts {
		rdr = opt(rdr)
	}

	return rdr
}

// String returns a Reader for the raw value of key.
func String(ctx context.Context, key string, opts ...Option[string]) Reader[string] {
	return apply(get(ctx, key), opts)
}

// Bool parses key with strconv.ParseBool.
func Bool(ctx context.Context, key string, opts ...Option[bool]) Reader[bool] {
	rdr := Map(get(ctx, key), func(s string) (bool, error) {
		return strconv.ParseBool(strings.TrimSpace(s))
	})

	return apply(rdr, opts)
}

// Intish is the set of signed integer types Int can produce.
type Intish interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

// Uintish is the set of unsigned integer types Uint can produce.
type Uintish interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Int parses key as a base-10 signed integer that fits in I.
func Int[I Intish](ctx context.Context, key string, opts ...Option[I]) Reader[I] {
	rdr := Map(get(ctx, key), func(s string) (I, error) {
		var probe I

		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, bitSize(probe))
		if err != nil {
			return 0, err
		}

		return I(n), nil
	})

	return apply(rdr, opts)
}

// Uint parses key as a base-10 unsigned integer that fits in U.
func Uint[U Uintish](ctx context.Context, key string, opts ...Option[U]) Reader[U] {
	rdr := Map(get(ctx, key), func(s string) (U, error) {
		var probe U

		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, bitSize(probe))
		if err != nil {
			return 0, err
		}

		return U(n), nil
	})

	return apply(rdr, opts)
}

// Float64 parses key as a float.
func Float64(ctx context.Context, key string, opts ...Option[float64]) Reader[float64] {
	rdr := Map(get(ctx, key), func(s string) (float64, error) {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	})

	return apply(rdr, opts)
}

// Duration parses key with time.ParseDuration ("30s", "1m30s").
func Duration(ctx context.Context, key string, opts ...Option[time.Duration]) Reader[time.Duration] {
	rdr := Map(get(ctx, key), func(s string) (time.Duration, error) {
		return time.ParseDuration(strings.TrimSpace(s))
	})

	return apply(rdr, opts)
}

// SlogLevel parses key as a slog level name ("debug", "INFO", "warn+2").
func SlogLevel(ctx context.Context, key string, opts ...Option[slog.Level]) Reader[slog.Level] {
	rdr := Map(get(ctx, key), func(s string) (slog.Level, error) {
		var level slog.Level

		err := level.UnmarshalText([]byte(strings.TrimSpace(s)))

		return level, err
	})

	return apply(rdr, opts)
}

func bitSize[T Intish | Uintish](v T) int {
	switch any(v).(type) {
	case int8, uint8:
		return 8
	case int16, uint16:
		return 16
	case int32, uint32:
		return 32
	default:
		return 64
	}
}
