// Package classify decides whether a failed call to an external dependency
// is worth retrying, and sorts failures into coarse categories for health
// bookkeeping.
//
// Classification runs an ordered list of matchers; the first matcher with an
// opinion wins. The default order is:
//
//  1. caller cancellation: never retry
//  2. explicit hint (X-Should-Retry header, WithRetryHint): authoritative
//  3. overloaded (status 529 or an "overloaded_error" body): retry
//  4. network failure anywhere in the first ten causes: retry
//  5. truncated streaming response: retry
//  6. schema or validation failure: never retry
//  7. status code table: 408, 409, 429, 401 and 5xx retry, others don't
//
// Errors nothing matches are not retried.
package classify

import (
	"context"
	"io"
	"net"
	"strings"
	"syscall"
	"time"
)

// Matcher inspects an error and either returns a retry verdict with
// matched=true, or matched=false to defer to the next matcher.
type Matcher func(err error) (retryable bool, matched bool)

// Result is everything the retry engine needs to know about one failure.
type Result struct {
	Retryable  bool
	Overloaded bool

	status        int
	hasStatus     bool
	retryAfter    time.Duration
	hasRetryAfter bool
}

// Status returns the response status code, if the error carried one.
func (r Result) Status() (int, bool) {
	return r.status, r.hasStatus
}

// RetryAfterHint returns the dependency's requested wait, if it sent a
// positive one.
func (r Result) RetryAfterHint() (time.Duration, bool) {
	return r.retryAfter, r.hasRetryAfter
}

// Classifier applies an ordered list of matchers.
type Classifier struct {
	matchers []Matcher
	now      func() time.Time
}

// New returns a Classifier using matchers in order. With no matchers it uses
// DefaultMatchers.
func New(matchers ...Matcher) *Classifier {
	if len(matchers) == 0 {
		matchers = DefaultMatchers()
	}

	return &Classifier{
		matchers: matchers,
		now:      time.Now,
	}
}

var defaultClassifier = New() //nolint:gochecknoglobals

// Default returns the shared classifier built from DefaultMatchers.
func Default() *Classifier {
	return defaultClassifier
}

// DefaultMatchers returns a fresh copy of the standard rule order.
func DefaultMatchers() []Matcher {
	return []Matcher{
		MatchCancellation,
		MatchRetryHint,
		MatchOverloaded,
		MatchNetwork,
		MatchTruncatedStream,
		MatchValidation,
		MatchStatusCode,
	}
}

// IsRetryable reports whether err is transient. A nil error is not.
func (c *Classifier) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	for _, match := range c.matchers {
		if retryable, ok := match(err); ok {
			return retryable
		}
	}

	return false
}

// Classify computes the full Result for err.
func (c *Classifier) Classify(err error) Result {
	if err == nil {
		return Result{}
	}

	res := Result{
		Retryable:  c.IsRetryable(err),
		Overloaded: isOverloaded(err),
	}

	res.status, res.hasStatus = statusOf(err)

	if hc, ok := find[HeaderCarrier](err); ok {
		res.retryAfter, res.hasRetryAfter = parseRetryAfter(hc.Header(), c.now())
	}

	return res
}

// IsRetryable classifies err with the default classifier.
func IsRetryable(err error) bool {
	return defaultClassifier.IsRetryable(err)
}

// Classify classifies err with the default classifier.
func Classify(err error) Result {
	return defaultClassifier.Classify(err)
}

// MatchCancellation refuses to retry work its own caller cancelled.
func MatchCancellation(err error) (bool, bool) {
	if is(err, context.Canceled) {
		return false, true
	}

	return false, false
}

// MatchRetryHint honors RetryHinter, the X-Should-Retry header included.
func MatchRetryHint(err error) (bool, bool) {
	var (
		retry   bool
		decided bool
	)

	Walk(err, func(e error) bool {
		if h, ok := e.(RetryHinter); ok { //nolint:errorlint // Walk already unwraps
			retry, decided = h.ShouldRetry()
		}

		return decided
	})

	return retry, decided
}

// MatchOverloaded retries saturated dependencies.
func MatchOverloaded(err error) (bool, bool) {
	if isOverloaded(err) {
		return true, true
	}

	return false, false
}

// MatchNetwork retries timeouts, refused or reset connections and other
// transport-level I/O failures found within the first MaxCauseDepth causes.
func MatchNetwork(err error) (bool, bool) {
	if isNetwork(err) {
		return true, true
	}

	return false, false
}

var truncatedStreamPatterns = []string{ //nolint:gochecknoglobals
	"incomplete chunked read",
	"unexpected eof",
	"peer closed connection",
	"stream ended unexpectedly",
}

// MatchTruncatedStream retries streaming responses cut off mid-body.
func MatchTruncatedStream(err error) (bool, bool) {
	if containsAny(strings.ToLower(err.Error()), truncatedStreamPatterns...) {
		return true, true
	}

	return false, false
}

var validationPatterns = []string{ //nolint:gochecknoglobals
	"validation error",
	"validationerror",
	"schema validation",
	"invalid schema",
}

// MatchValidation never retries requests the dependency rejected as
// malformed, even if they came back with a retryable-looking status.
func MatchValidation(err error) (bool, bool) {
	if containsAny(strings.ToLower(err.Error()), validationPatterns...) {
		return false, true
	}

	return false, false
}

// MatchStatusCode applies the status table. Errors without a status code
// don't match.
func MatchStatusCode(err error) (bool, bool) {
	status, ok := statusOf(err)
	if !ok {
		return false, false
	}

	switch {
	case status == 408, status == 409, status == 429, status == 401:
		return true, true
	case status >= 500:
		return true, true
	default:
		return false, true
	}
}

func statusOf(err error) (int, bool) {
	sc, ok := find[StatusCoder](err)
	if !ok {
		return 0, false
	}

	status := sc.StatusCode()

	return status, status > 0
}

func isOverloaded(err error) bool {
	if status, ok := statusOf(err); ok && status == StatusOverloaded {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "overloaded_error")
}

func isNetwork(err error) bool {
	return Walk(err, func(e error) bool {
		// syscall.Errno satisfies net.Error, so it has to be checked first.
		switch x := e.(type) { //nolint:errorlint // Walk already unwraps
		case syscall.Errno:
			return isNetworkErrno(x)
		case net.Error:
			return true
		}

		return e == io.ErrUnexpectedEOF || e == context.DeadlineExceeded //nolint:errorlint,err113
	})
}

func isNetworkErrno(errno syscall.Errno) bool {
	switch errno { //nolint:exhaustive
	case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED,
		syscall.ETIMEDOUT, syscall.EPIPE, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
		return true
	default:
		return false
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}

	return false
}
