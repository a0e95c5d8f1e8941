package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess   = "success"
	outcomeRetryable = "retryable"
	outcomeFatal     = "fatal"
	outcomeCanceled  = "canceled"

	reasonExhausted  = "exhausted"
	reasonOverloaded = "overloaded"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "resilience_retry_attempts_total",
		Help: "The total number of attempts, by outcome",
	}, []string{"operation", "outcome"})

	exhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "resilience_retry_exhausted_total",
		Help: "The total number of runs that gave up",
	}, []string{"operation", "reason"})

	recoveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "resilience_retry_recovered_total",
		Help: "The total number of runs that succeeded after at least one retry",
	}, []string{"operation"})

	backoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{ //nolint:gochecknoglobals
		Name:    "resilience_retry_backoff_seconds",
		Help:    "Time spent sleeping between attempts",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), //nolint:mnd
	}, []string{"operation"})
)
