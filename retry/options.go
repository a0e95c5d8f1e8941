package retry

import (
	"log/slog"

	"github.com/amp-labs/amp-resilience/classify"
	"go.opentelemetry.io/otel/trace"
)

// DefaultOverloadLimit is how many overload signals in a row end a run early.
const DefaultOverloadLimit = 3

// Option is a function that configures a Runner or ValueRunner.
// Options follow the functional options pattern for flexible configuration.
type Option func(*options)

// options holds the internal configuration for retry behavior.
type options struct {
	maxRetries     int                  // Retries after the first attempt
	overloadLimit  int                  // Consecutive overloads that abort the run
	backoff        Backoff              // Delay between attempts
	classifier     *classify.Classifier // Decides which errors are retried
	observer       Observer             // Optional retry notifications
	timeout        Timeout              // Deadline for each individual attempt
	name           string               // Operation label for logs, metrics and spans
	logger         *slog.Logger         // Overrides the context logger
	tracerProvider trace.TracerProvider // Overrides the global tracer provider
}

func defaultOptions() *options {
	return &options{
		maxRetries:    DefaultMaxRetries,
		overloadLimit: DefaultOverloadLimit,
		backoff:       DefaultBackoff(),
		classifier:    classify.Default(),
		name:          "operation",
	}
}

// WithMaxRetries sets how many times a failed operation is retried, so the
// operation runs at most n+1 times. Negative values are treated as 0.
//
// Example:
//
//	runner := retry.NewRunner(retry.WithMaxRetries(retry.MaxRetriesFromEnv(ctx)))
func WithMaxRetries(n int) Option {
	return func(o *options) {
		o.maxRetries = max(n, 0)
	}
}

// WithOverloadLimit sets how many overload signals in a row end the run
// before the retry limit is reached. Values below 1 restore the default.
func WithOverloadLimit(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = DefaultOverloadLimit
		}

		o.overloadLimit = n
	}
}

// WithBackoff configures the delay between attempts.
//
// Example:
//
//	runner := retry.NewRunner(retry.WithBackoff(retry.Backoff{
//	    Base:   100 * time.Millisecond,
//	    Max:    5 * time.Second,
//	    Jitter: retry.DefaultJitter,
//	}))
func WithBackoff(b Backoff) Option {
	return func(o *options) {
		o.backoff = b
	}
}

// WithClassifier replaces the classifier that decides which errors are
// retried. A nil classifier is ignored.
func WithClassifier(c *classify.Classifier) Option {
	return func(o *options) {
		if c != nil {
			o.classifier = c
		}
	}
}

// WithObserver registers retry notifications.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithTimeout configures a deadline for each individual attempt.
// An attempt that exceeds it is canceled and, like any timeout, retried.
//
// Example:
//
//	runner := retry.NewRunner(retry.WithTimeout(retry.Timeout(30 * time.Second)))
func WithTimeout(t Timeout) Option {
	return func(o *options) {
		o.timeout = t
	}
}

// WithName labels the operation in logs, metrics and spans.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
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
