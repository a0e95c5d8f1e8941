package isolator

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultQuarantineThreshold is how many failures in a row quarantine a server.
	DefaultQuarantineThreshold = 3
	// DefaultBaseQuarantine is the length of a server's first quarantine.
	DefaultBaseQuarantine = 30 * time.Second
	// DefaultMaxQuarantine caps the quarantine length.
	DefaultMaxQuarantine = 30 * time.Minute
)

// Option configures an Isolator.
type Option func(*options)

type options struct {
	threshold      uint
	baseQuarantine time.Duration
	maxQuarantine  time.Duration
	clock          func() time.Time
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
}

func defaultOptions() *options {
	return &options{
		threshold:      DefaultQuarantineThreshold,
		baseQuarantine: DefaultBaseQuarantine,
		maxQuarantine:  DefaultMaxQuarantine,
		clock:          time.Now,
	}
}

// WithQuarantineThreshold sets how many consecutive failures quarantine a
// server. Zero restores the default.
func WithQuarantineThreshold(n uint) Option {
	return func(o *options) {
		if n == 0 {
			n = DefaultQuarantineThreshold
		}

		o.threshold = n
	}
}

// WithBaseQuarantine sets the length of the first quarantine. Each later
// quarantine of the same server is twice as long as the one before.
func WithBaseQuarantine(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.baseQuarantine = d
		}
	}
}

// WithMaxQuarantine caps the quarantine length.
func WithMaxQuarantine(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxQuarantine = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithLogger logs to l instead of the logger carried by the context.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTracerProvider creates spans with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}
