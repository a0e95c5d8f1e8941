// Package isolator tracks the health of named dependencies ("servers") and
// stops calling the ones that keep failing.
//
// Every failure is counted and categorized. When a server fails
// QuarantineThreshold times in a row it is quarantined: calls to it fail
// fast with a *QuarantinedError until the quarantine expires or is released.
// Each quarantine of the same server lasts twice as long as the previous
// one, up to a cap. Any success resets the consecutive-failure count.
//
//	iso := isolator.New(isolator.WithQuarantineThreshold(5))
//
//	tools, err := isolator.Call(ctx, iso, "search", func(ctx context.Context) ([]Tool, error) {
//	    return searchClient.ListTools(ctx)
//	})
//	if errors.Is(err, isolator.ErrQuarantined) {
//	    // skip the server for now
//	}
//
// An Isolator is safe for concurrent use. Calls for different servers never
// wait on each other.
package isolator

import (
	"context"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/amp-labs/amp-resilience/classify"
	"github.com/amp-labs/amp-resilience/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/amp-labs/amp-resilience/isolator"

// entry is one server's record. Its fields are guarded by mu.
type entry struct {
	mu    sync.Mutex
	stats ErrorStats
}

// Isolator holds per-server error statistics and quarantines.
type Isolator struct {
	opts   *options
	tracer trace.Tracer

	mu      sync.RWMutex // guards the map, not the entries
	entries map[string]*entry
}

// New creates an Isolator. Defaults: quarantine after 3 consecutive
// failures, for 30s the first time, doubling up to 30m.
func New(opts ...Option) *Isolator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Isolator{
		opts:    o,
		tracer:  tp.Tracer(tracerName),
		entries: make(map[string]*entry),
	}
}

// QuarantineThreshold returns the configured number of consecutive failures
// that quarantines a server.
func (i *Isolator) QuarantineThreshold() uint {
	return i.opts.threshold
}

// lookup returns the entry for name without creating it.
func (i *Isolator) lookup(name string) (*entry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	e, ok := i.entries[name]

	return e, ok
}

// entry returns the entry for name, creating it on first use.
func (i *Isolator) entry(name string) *entry {
	if e, ok := i.lookup(name); ok {
		return e
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if e, ok := i.entries[name]; ok {
		return e
	}

	e := &entry{
		stats: ErrorStats{ErrorTypeCounts: map[classify.Category]uint{}},
	}
	i.entries[name] = e

	return e
}

func (i *Isolator) log(ctx context.Context) *slog.Logger {
	if i.opts.logger != nil {
		return i.opts.logger
	}

	return logger.Get(ctx)
}

// CalculateQuarantineDuration returns the length of a server's next
// quarantine given how many it has had: base * 2^count, capped at the max.
func (i *Isolator) CalculateQuarantineDuration(quarantineCount uint) time.Duration {
	f := float64(i.opts.baseQuarantine) * math.Pow(2, float64(quarantineCount))
	if f >= float64(i.opts.maxQuarantine) {
		return i.opts.maxQuarantine
	}

	return time.Duration(f)
}

// RecordError counts a failure against name. If the server has now failed
// QuarantineThreshold times in a row it is quarantined. A nil err is ignored.
func (i *Isolator) RecordError(ctx context.Context, name string, err error) {
	if err == nil {
		return
	}

	category := classify.Categorize(err)
	e := i.entry(name)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.TotalErrors++
	e.stats.ConsecutiveErrors++
	e.stats.LastErrorAt = i.opts.clock()
	e.stats.ErrorTypeCounts[category]++

	errorsTotal.WithLabelValues(name, category.String()).Inc()

	i.log(ctx).Debug("recorded server error",
		"server", name,
		"category", category,
		"consecutive_errors", e.stats.ConsecutiveErrors,
		"error", err)

	if e.stats.ConsecutiveErrors >= i.opts.threshold {
		i.quarantineLocked(ctx, name, e, 0)
	}
}

// RecordSuccess resets the consecutive failure count for name. The total
// is left alone.
func (i *Isolator) RecordSuccess(name string) {
	e := i.entry(name)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.ConsecutiveErrors = 0
}

// Quarantine refuses calls to name for d. A d of zero or less uses
// CalculateQuarantineDuration for the server's quarantine count.
func (i *Isolator) Quarantine(ctx context.Context, name string, d time.Duration) {
	e := i.entry(name)

	e.mu.Lock()
	defer e.mu.Unlock()

	i.quarantineLocked(ctx, name, e, d)
}

func (i *Isolator) quarantineLocked(ctx context.Context, name string, e *entry, d time.Duration) {
	if d <= 0 {
		d = i.CalculateQuarantineDuration(e.stats.QuarantineCount)
	}

	e.stats.QuarantineUntil = i.opts.clock().Add(d)
	e.stats.QuarantineCount++

	quarantinesTotal.WithLabelValues(name).Inc()
	quarantined.WithLabelValues(name).Set(1)

	i.log(ctx).Warn("quarantining server",
		"server", name,
		"duration", d.String(),
		"until", e.stats.QuarantineUntil,
		"quarantine_count", e.stats.QuarantineCount,
		"consecutive_errors", e.stats.ConsecutiveErrors)
}

// ReleaseQuarantine lifts any quarantine on name. Releasing an unknown or
// healthy server does nothing.
func (i *Isolator) ReleaseQuarantine(ctx context.Context, name string) {
	e, ok := i.lookup(name)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stats.QuarantineUntil.IsZero() {
		return
	}

	e.stats.QuarantineUntil = time.Time{}
	quarantined.WithLabelValues(name).Set(0)

	i.log(ctx).Info("released server from quarantine", "server", name)
}

// IsQuarantined reports whether calls to name are currently refused. An
// expired quarantine is cleared as a side effect.
func (i *Isolator) IsQuarantined(name string) bool {
	_, ok := i.quarantinedUntil(name)

	return ok
}

// QuarantineRemaining returns how long name stays quarantined, or zero.
func (i *Isolator) QuarantineRemaining(name string) time.Duration {
	until, ok := i.quarantinedUntil(name)
	if !ok {
		return 0
	}

	return until.Sub(i.opts.clock())
}

func (i *Isolator) quarantinedUntil(name string) (time.Time, bool) {
	e, ok := i.lookup(name)
	if !ok {
		return time.Time{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	until := e.stats.QuarantineUntil
	if until.IsZero() {
		return time.Time{}, false
	}

	if i.opts.clock().Before(until) {
		return until, true
	}

	e.stats.QuarantineUntil = time.Time{}
	quarantined.WithLabelValues(name).Set(0)

	return time.Time{}, false
}

// GetErrorStats returns a copy of name's record, or false if nothing was
// ever recorded for it.
func (i *Isolator) GetErrorStats(name string) (ErrorStats, bool) {
	e, ok := i.lookup(name)
	if !ok {
		return ErrorStats{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.stats.clone(), true
}

// Snapshot returns a copy of every server's record. Each record is
// consistent on its own; records of different servers may be taken a
// moment apart.
func (i *Isolator) Snapshot() map[string]ErrorStats {
	i.mu.RLock()
	entries := maps.Clone(i.entries)
	i.mu.RUnlock()

	out := make(map[string]ErrorStats, len(entries))

	for name, e := range entries {
		e.mu.Lock()
		out[name] = e.stats.clone()
		e.mu.Unlock()
	}

	return out
}

// Names returns the servers seen so far, sorted.
func (i *Isolator) Names() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return slices.Sorted(maps.Keys(i.entries))
}

// ResetStats forgets everything recorded for name, including any
// quarantine.
func (i *Isolator) ResetStats(name string) {
	e, ok := i.lookup(name)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats = ErrorStats{ErrorTypeCounts: map[classify.Category]uint{}}
	quarantined.WithLabelValues(name).Set(0)
}
