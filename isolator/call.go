package isolator

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outcome is the result delivered by an awaited operation.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Do runs op against the server name unless it is quarantined. The error
// from op is returned unchanged, after being recorded.
func (i *Isolator) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	_, err := Call(ctx, i, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})

	return err
}

// Call runs op against the server name unless it is quarantined, in which
// case it returns a *QuarantinedError without calling op. Otherwise a
// failure is recorded and a success resets the consecutive failure count;
// op's results are returned unchanged either way.
func Call[T any](ctx context.Context, iso *Isolator, name string, op func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := iso.start(ctx, name)
	defer span.End()

	if err := iso.admit(ctx, name, span); err != nil {
		var zero T

		return zero, err
	}

	out, err := op(ctx)
	iso.settle(ctx, name, span, err)

	return out, err
}

// Await is Call for operations that deliver their result on a channel.
// start is called once; Await then waits for the Outcome or for ctx to be
// canceled, whichever comes first. Giving up on ctx is not held against
// the server.
func Await[T any](
	ctx context.Context,
	iso *Isolator,
	name string,
	start func(ctx context.Context) <-chan Outcome[T],
) (T, error) {
	var zero T

	ctx, span := iso.start(ctx, name)
	defer span.End()

	if err := iso.admit(ctx, name, span); err != nil {
		return zero, err
	}

	ch := start(ctx)
	if ch == nil {
		iso.settle(ctx, name, span, ErrNoOutcome)

		return zero, ErrNoOutcome
	}

	select {
	case <-ctx.Done():
		iso.settle(ctx, name, span, ctx.Err())

		return zero, ctx.Err()
	case res, ok := <-ch:
		if !ok {
			res.Err = ErrNoOutcome
		}

		iso.settle(ctx, name, span, res.Err)

		return res.Value, res.Err
	}
}

func (i *Isolator) start(ctx context.Context, name string) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, "isolator.call",
		trace.WithAttributes(attribute.String("isolator.server", name)))
}

// admit creates the server's record on first sight and refuses the call if
// the server is quarantined.
func (i *Isolator) admit(ctx context.Context, name string, span trace.Span) error {
	i.entry(name)

	until, ok := i.quarantinedUntil(name)
	if !ok {
		return nil
	}

	rejectedTotal.WithLabelValues(name).Inc()
	span.AddEvent("quarantined", trace.WithAttributes(
		attribute.String("isolator.until", until.String()),
	))

	err := &QuarantinedError{Server: name, Until: until}
	span.SetStatus(codes.Error, err.Error())

	i.log(ctx).Debug("refusing call to quarantined server",
		"server", name,
		"until", until)

	return err
}

// settle records the result of a call that was actually made.
func (i *Isolator) settle(ctx context.Context, name string, span trace.Span, err error) {
	if err == nil {
		i.RecordSuccess(name)

		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	// The caller gave up; that says nothing about the server.
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return
	}

	i.RecordError(ctx, name, err)
}
