package isolator

import (
	"errors"
	"fmt"
	"time"
)

// ErrQuarantined matches every QuarantinedError.
var ErrQuarantined = errors.New("server is quarantined")

// QuarantinedError is returned instead of calling a quarantined server. The
// operation was never started, so the error says nothing new about the
// server's health and is not recorded against it.
type QuarantinedError struct {
	Server string
	Until  time.Time
}

func (e *QuarantinedError) Error() string {
	return fmt.Sprintf("server %q is quarantined until %s", e.Server, e.Until.Format(time.RFC3339))
}

func (e *QuarantinedError) Is(target error) bool {
	return target == ErrQuarantined //nolint:errorlint // comparing sentinels
}

// ErrNoOutcome is recorded when an awaited operation closes its channel
// without delivering an Outcome.
var ErrNoOutcome = errors.New("operation finished without an outcome")
