package classify

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// HeaderShouldRetry carries the provider's authoritative retry decision.
	HeaderShouldRetry = "X-Should-Retry"
	// HeaderRetryAfterMs is a millisecond wait hint; it wins over Retry-After.
	HeaderRetryAfterMs = "Retry-After-Ms"
	// HeaderRetryAfter is the standard wait hint, in seconds or as an HTTP date.
	HeaderRetryAfter = "Retry-After"

	// StatusOverloaded is the provider status code for a saturated backend.
	StatusOverloaded = 529
)

// StatusCoder is implemented by errors that carry a response status code.
type StatusCoder interface {
	StatusCode() int
}

// HeaderCarrier is implemented by errors that carry response headers.
type HeaderCarrier interface {
	Header() http.Header
}

// RetryHinter is implemented by errors that know whether they should be
// retried. ok is false when the error has no opinion.
type RetryHinter interface {
	ShouldRetry() (retry bool, ok bool)
}

// APIError is the error a dependency client returns for a non-2xx response.
// Clients that cannot implement the interfaces above on their own error types
// can wrap responses in an APIError.
type APIError struct {
	Status  int
	Headers http.Header
	Body    string
	Err     error
}

var (
	_ StatusCoder   = (*APIError)(nil)
	_ HeaderCarrier = (*APIError)(nil)
	_ RetryHinter   = (*APIError)(nil)
)

// NewAPIError builds an APIError from a response and its already-read body.
func NewAPIError(resp *http.Response, body []byte) *APIError {
	return &APIError{
		Status:  resp.StatusCode,
		Headers: resp.Header.Clone(),
		Body:    string(body),
	}
}

func (e *APIError) Error() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "api error: status %d", e.Status)

	if body := strings.TrimSpace(e.Body); body != "" {
		sb.WriteString(": ")
		sb.WriteString(body)
	}

	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}

	return sb.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) StatusCode() int {
	return e.Status
}

func (e *APIError) Header() http.Header {
	return e.Headers
}

// ShouldRetry reads the X-Should-Retry header.
func (e *APIError) ShouldRetry() (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(e.Headers.Get(HeaderShouldRetry))) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// hintedError pins an explicit retry decision onto an error.
type hintedError struct {
	error
	retry bool
}

func (h *hintedError) ShouldRetry() (bool, bool) {
	return h.retry, true
}

func (h *hintedError) Unwrap() error {
	return h.error
}

// WithRetryHint attaches an authoritative retry decision to err. The
// classifier honors it ahead of status codes and message patterns. A nil err
// stays nil.
func WithRetryHint(err error, retry bool) error {
	if err == nil {
		return nil
	}

	return &hintedError{error: err, retry: retry}
}

// Permanent marks err as not worth retrying.
//
//	if err := validate(req); err != nil {
//	    return classify.Permanent(err)
//	}
func Permanent(err error) error {
	return WithRetryHint(err, false)
}

// Transient marks err as safe to retry.
func Transient(err error) error {
	return WithRetryHint(err, true)
}

// parseRetryAfter extracts a positive wait hint from response headers.
func parseRetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	if h == nil {
		return 0, false
	}

	if raw := strings.TrimSpace(h.Get(HeaderRetryAfterMs)); raw != "" {
		if ms, err := strconv.ParseFloat(raw, 64); err == nil && ms > 0 {
			return time.Duration(ms * float64(time.Millisecond)), true
		}
	}

	raw := strings.TrimSpace(h.Get(HeaderRetryAfter))
	if raw == "" {
		return 0, false
	}

	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if secs > 0 {
			return time.Duration(secs * float64(time.Second)), true
		}

		return 0, false
	}

	if at, err := http.ParseTime(raw); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
	}

	return 0, false
}
