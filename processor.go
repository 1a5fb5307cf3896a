package otelsentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/telamonlabs/otelsentry/internal/spanmap"
)

// Attribute keys the bridge entry points stamp onto OTel spans so the
// processor can carry them over to the Sentry side.
const (
	opAttrKey          = attribute.Key("sentry.op")
	descriptionAttrKey = attribute.Key("sentry.description")
)

const shutdownFlushTimeout = 2 * time.Second

// bridgeSpans is the process-wide lookup table binding OTel span IDs
// to Sentry spans. It is reachable only through Spans().
var bridgeSpans = spanmap.New()

// Spans returns the identifier→span lookup table shared by the
// processor and the bridge entry points.
func Spans() *spanmap.Map {
	return bridgeSpans
}

// SpanProcessor mirrors OTel span lifecycles into Sentry spans.
//
// OnStart creates the Sentry twin of every sampled OTel span and
// records it in the span map; OnEnd finalizes the twin and removes the
// mapping. Ending the OTel span is therefore the one documented way a
// bridged Sentry span is finished — there is no second, implicit
// end-of-life path.
type SpanProcessor struct {
	spans *spanmap.Map
}

// ProcessorOption configures a SpanProcessor.
type ProcessorOption interface {
	apply(*SpanProcessor)
}

type spanMapOption struct {
	spans *spanmap.Map
}

func (o spanMapOption) apply(p *SpanProcessor) { p.spans = o.spans }

// WithSpanMap overrides the lookup table the processor records spans
// in. Intended for tests that need a private map.
func WithSpanMap(m *spanmap.Map) ProcessorOption {
	return spanMapOption{spans: m}
}

// NewSpanProcessor creates a processor backed by the shared span map.
func NewSpanProcessor(opts ...ProcessorOption) *SpanProcessor {
	p := &SpanProcessor{spans: bridgeSpans}
	for _, opt := range opts {
		opt.apply(p)
	}
	return p
}

// OnStart derives the Sentry span for a freshly started OTel span.
// A span with a locally mapped parent becomes a child span; anything
// else starts a new Sentry transaction on the hub carried by ctx.
func (p *SpanProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	hub := hubFromContext(ctx)
	client := hub.Client()
	if client == nil || !client.Options().EnableTracing {
		return
	}

	sc := s.SpanContext()
	parent := s.Parent()
	sampled := sentry.SampledFalse
	if sc.IsSampled() {
		sampled = sentry.SampledTrue
	}

	var span *sentry.Span
	if parentSpan, ok := p.spans.Get(parent.SpanID()); ok && parent.IsValid() && !parent.IsRemote() {
		span = parentSpan.StartChild(s.Name(), sentry.WithSpanSampled(sampled))
	} else {
		span = sentry.StartTransaction(ctx, s.Name(),
			sentry.WithTransactionSource(sentry.SourceCustom),
			sentry.WithSpanSampled(sampled),
		)
		if parent.IsValid() && parent.IsRemote() {
			span.ParentSpanID = sentry.SpanID(parent.SpanID())
		}
	}

	// The Sentry span adopts the OTel identity so either side can be
	// resolved from the other.
	span.TraceID = sentry.TraceID(sc.TraceID())
	span.SpanID = sentry.SpanID(sc.SpanID())
	span.StartTime = s.StartTime()

	p.spans.Set(sc.SpanID(), span)
}

// OnEnd finalizes the Sentry twin of an ended OTel span and drops the
// mapping. This is the "finalize both" contract: after OnEnd returns,
// a lookup by the OTel span ID fails and the Sentry span is finished.
func (p *SpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	id := s.SpanContext().SpanID()
	span, ok := p.spans.Get(id)
	if !ok {
		return
	}
	defer p.spans.Delete(id)

	// Instrumentation such as otelhttp renames spans at end time.
	if span.IsTransaction() {
		span.Name = s.Name()
	} else if span.Description == "" {
		span.Description = s.Name()
	}
	applyBridgeAttributes(span, s.Attributes())

	if span.Status == sentry.SpanStatusUndefined {
		span.Status = spanStatus(s.Status().Code)
	}
	span.EndTime = s.EndTime()
	span.Finish()
}

// Shutdown drops all live mappings and flushes buffered Sentry events.
func (p *SpanProcessor) Shutdown(ctx context.Context) error {
	p.spans.Clear()
	return p.ForceFlush(ctx)
}

// ForceFlush flushes buffered Sentry events.
func (p *SpanProcessor) ForceFlush(ctx context.Context) error {
	deadline := shutdownFlushTimeout
	if d, ok := ctx.Deadline(); ok {
		deadline = time.Until(d)
		if deadline < 0 {
			deadline = 0
		}
	}
	sentry.CurrentHub().Flush(deadline)
	return nil
}

func applyBridgeAttributes(span *sentry.Span, attrs []attribute.KeyValue) {
	for _, kv := range attrs {
		switch kv.Key {
		case opAttrKey:
			span.Op = kv.Value.AsString()
		case descriptionAttrKey:
			span.Description = kv.Value.AsString()
		}
	}
}

func spanStatus(code codes.Code) sentry.SpanStatus {
	// An unset OTel status on a finished span means nothing went
	// wrong, so it maps to OK rather than unknown.
	switch code {
	case codes.Error:
		return sentry.SpanStatusInternalError
	default:
		return sentry.SpanStatusOK
	}
}

func hubFromContext(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}
