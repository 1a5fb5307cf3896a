package otelsentry

import (
	"context"
	"fmt"
	"sync"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope of spans created by the
// bridge entry points.
const tracerName = "github.com/telamonlabs/otelsentry"

// unlabeledSpan names spans whose SpanConfig carries no label at all.
const unlabeledSpan = "<unlabeled span>"

// SpanConfig describes a span to create. Only the display name is
// mandatory, and it is derived with precedence Name > Description > Op.
type SpanConfig struct {
	// Name is the explicit span name.
	Name string

	// Description is a human-readable fallback name, also recorded as
	// the Sentry span description.
	Description string

	// Op is the Sentry operation label (e.g. "db.query").
	Op string

	// Metadata is attached to the Sentry span when it is a root
	// transaction. Child spans ignore it.
	Metadata map[string]any
}

func (c SpanConfig) displayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.Description != "":
		return c.Description
	case c.Op != "":
		return c.Op
	default:
		return unlabeledSpan
	}
}

// TracingEnabled reports whether the current Sentry client is
// configured for tracing. When false, every bridge entry point is a
// nil-span pass-through and no OTel spans are created.
func TracingEnabled() bool {
	client := sentry.CurrentHub().Client()
	return client != nil && client.Options().EnableTracing
}

// WithSpanResult runs fn inside a new active span and returns its
// result unchanged.
//
// The OTel span ends exactly once, strictly after fn settles: on
// normal return, on error (span marked internal-error first), or on
// panic (marked, ended, then the identical value is re-panicked).
func WithSpanResult[T any](ctx context.Context, c SpanConfig, fn func(context.Context, *sentry.Span) (T, error)) (T, error) {
	if !TracingEnabled() {
		return fn(ctx, nil)
	}

	spanCtx, otelSpan := startSpan(ctx, c)
	span := resolveSpan(otelSpan, c)

	defer func() {
		if v := recover(); v != nil {
			markInternalError(otelSpan, span, fmt.Sprint(v))
			otelSpan.End()
			panic(v)
		}
	}()

	out, err := fn(spanCtx, span)
	if err != nil {
		markInternalError(otelSpan, span, err.Error())
		otelSpan.RecordError(err)
	}
	otelSpan.End()
	return out, err
}

// WithSpan runs fn inside a new active span. It is WithSpanResult for
// callbacks that produce no value.
func WithSpan(ctx context.Context, c SpanConfig, fn func(context.Context, *sentry.Span) error) error {
	_, err := WithSpanResult(ctx, c, func(ctx context.Context, span *sentry.Span) (struct{}, error) {
		return struct{}{}, fn(ctx, span)
	})
	return err
}

// GoSpan runs fn on a new goroutine inside a new span and delivers its
// error on the returned channel. The span ends strictly after fn
// settles and strictly before the error becomes observable. The
// channel is buffered, so the caller may drop it.
//
// A panic in fn marks the span internal-error, ends it, and then
// re-panics on the spawned goroutine.
func GoSpan(ctx context.Context, c SpanConfig, fn func(context.Context, *sentry.Span) error) <-chan error {
	errc := make(chan error, 1)

	if !TracingEnabled() {
		go func() {
			errc <- fn(ctx, nil)
		}()
		return errc
	}

	spanCtx, otelSpan := startSpan(ctx, c)
	span := resolveSpan(otelSpan, c)

	go func() {
		defer func() {
			if v := recover(); v != nil {
				markInternalError(otelSpan, span, fmt.Sprint(v))
				otelSpan.End()
				panic(v)
			}
		}()

		err := fn(spanCtx, span)
		if err != nil {
			markInternalError(otelSpan, span, err.Error())
			otelSpan.RecordError(err)
		}
		otelSpan.End()
		errc <- err
	}()
	return errc
}

// InactiveSpan is a bridged Sentry span whose lifetime the caller
// controls. It delegates every operation to the underlying Sentry span
// except Finish, which ends the source OTel span instead; the span
// processor then finalizes the Sentry side.
type InactiveSpan struct {
	*sentry.Span

	otelSpan trace.Span
	finish   sync.Once
}

// Finish ends the underlying OTel span, at most once. Repeated calls
// are no-ops and can never end a different span.
func (s *InactiveSpan) Finish() {
	s.finish.Do(func() { s.otelSpan.End() })
}

// StartInactiveSpan starts a span without activating it: the caller's
// context is used for parenting only, and no derived context exists.
// Returns nil when tracing is disabled or the span was not bridged
// (e.g. not sampled).
func StartInactiveSpan(ctx context.Context, c SpanConfig) *InactiveSpan {
	if !TracingEnabled() {
		return nil
	}

	_, otelSpan := startSpan(ctx, c)
	span := resolveSpan(otelSpan, c)
	if span == nil {
		otelSpan.End()
		return nil
	}
	return &InactiveSpan{Span: span, otelSpan: otelSpan}
}

// ActiveSpan maps the OTel active span of ctx back to its Sentry
// representation. Returns nil when no span is active or no mapping
// exists.
func ActiveSpan(ctx context.Context) *sentry.Span {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	span, ok := bridgeSpans.Get(sc.SpanID())
	if !ok {
		return nil
	}
	return span
}

func startSpan(ctx context.Context, c SpanConfig) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	if c.Op != "" {
		attrs = append(attrs, opAttrKey.String(c.Op))
	}
	if c.Description != "" {
		attrs = append(attrs, descriptionAttrKey.String(c.Description))
	}
	return otel.Tracer(tracerName).Start(ctx, c.displayName(), trace.WithAttributes(attrs...))
}

// resolveSpan looks up the Sentry twin of an OTel span and attaches
// transaction metadata when applicable.
func resolveSpan(otelSpan trace.Span, c SpanConfig) *sentry.Span {
	span, ok := bridgeSpans.Get(otelSpan.SpanContext().SpanID())
	if !ok {
		return nil
	}
	if span.IsTransaction() && len(c.Metadata) > 0 {
		for k, v := range c.Metadata {
			span.SetData(k, v)
		}
	}
	return span
}

func markInternalError(otelSpan trace.Span, span *sentry.Span, desc string) {
	if span != nil {
		span.Status = sentry.SpanStatusInternalError
	}
	otelSpan.SetStatus(codes.Error, desc)
}
