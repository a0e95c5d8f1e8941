package retry

import (
	"errors"
	"fmt"
)

var (
	// ErrExhausted matches every ExhaustedError: the operation kept failing
	// with transient errors until the engine gave up.
	ErrExhausted = errors.New("retries exhausted")

	// ErrOverloaded matches an ExhaustedError raised early because the
	// dependency reported itself overloaded several times in a row.
	ErrOverloaded = errors.New("dependency overloaded")
)

// ExhaustedError is returned when an operation failed with retryable errors
// until the engine stopped trying. Cause is the error from the last attempt.
//
//	var exhausted *retry.ExhaustedError
//	if errors.As(err, &exhausted) {
//	    slog.Warn("giving up", "attempts", exhausted.Attempts)
//	}
type ExhaustedError struct {
	// Attempts is the number of times the operation ran.
	Attempts int
	// Cause is the last attempt's error.
	Cause error
	// Overloaded is set when the engine stopped early after consecutive
	// overload signals instead of running out of retries.
	Overloaded bool
	// Consecutive is the number of overload signals in a row that stopped
	// the engine. Zero unless Overloaded.
	Consecutive int
}

func (e *ExhaustedError) Error() string {
	if e.Overloaded {
		return fmt.Sprintf("giving up after %d consecutive overloaded errors (%d attempts): %v",
			e.Consecutive, e.Attempts, e.Cause)
	}

	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}

// Is matches ErrExhausted always, and ErrOverloaded for early aborts.
func (e *ExhaustedError) Is(target error) bool {
	switch target { //nolint:errorlint // comparing sentinels
	case ErrExhausted:
		return true
	case ErrOverloaded:
		return e.Overloaded
	default:
		return false
	}
}
