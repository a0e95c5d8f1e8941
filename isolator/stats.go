package isolator

import (
	"maps"
	"time"

	"github.com/amp-labs/amp-resilience/classify"
)

// ErrorStats is a point-in-time copy of one server's health record.
type ErrorStats struct {
	// TotalErrors counts every recorded failure and never goes down.
	TotalErrors uint
	// ConsecutiveErrors counts failures since the last success.
	ConsecutiveErrors uint
	// LastErrorAt is zero until the first failure.
	LastErrorAt time.Time
	// ErrorTypeCounts counts failures by category and never goes down.
	ErrorTypeCounts map[classify.Category]uint
	// QuarantineCount is the number of times the server was quarantined.
	QuarantineCount uint
	// QuarantineUntil is zero when the server is not quarantined. It may be
	// in the past if nobody has checked the server since it expired.
	QuarantineUntil time.Time
}

// QuarantinedAt reports whether the quarantine covers t.
func (s ErrorStats) QuarantinedAt(t time.Time) bool {
	return !s.QuarantineUntil.IsZero() && t.Before(s.QuarantineUntil)
}

func (s ErrorStats) clone() ErrorStats {
	out := s
	out.ErrorTypeCounts = maps.Clone(s.ErrorTypeCounts)

	if out.ErrorTypeCounts == nil {
		out.ErrorTypeCounts = map[classify.Category]uint{}
	}

	return out
}
