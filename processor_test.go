package otelsentry

import (
	"context"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/telamonlabs/otelsentry/internal/spanmap"
)

// localTracer builds a tracer provider that is not installed globally,
// recording bridged spans in the given map.
func localTracer(m *spanmap.Map) trace.Tracer {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(NewSpanProcessor(WithSpanMap(m))),
	)
	return tp.Tracer("test")
}

func TestSpanProcessor_BridgesSpanLifecycle(t *testing.T) {
	setupBridge(t, true)

	m := spanmap.New()
	tracer := localTracer(m)

	_, span := tracer.Start(context.Background(), "op")
	id := span.SpanContext().SpanID()

	bridged, ok := m.Get(id)
	if !ok {
		t.Fatal("no mapping recorded on span start")
	}
	if !bridged.IsTransaction() {
		t.Error("parentless span did not become a transaction")
	}
	if bridged.SpanID != sentry.SpanID(id) {
		t.Errorf("bridged span ID = %s, want %s", bridged.SpanID, id)
	}
	if bridgeSpans.Len() != 0 {
		t.Error("default span map polluted by processor with private map")
	}

	span.End()
	if _, ok := m.Get(id); ok {
		t.Error("mapping survived span end")
	}
	if bridged.EndTime.IsZero() {
		t.Error("bridged span not finished on span end")
	}
	if bridged.Status != sentry.SpanStatusOK {
		t.Errorf("bridged span status = %v, want ok", bridged.Status)
	}
}

func TestSpanProcessor_ErrorStatus(t *testing.T) {
	setupBridge(t, true)

	m := spanmap.New()
	tracer := localTracer(m)

	_, span := tracer.Start(context.Background(), "op")
	bridged, _ := m.Get(span.SpanContext().SpanID())
	span.SetStatus(codes.Error, "broken")
	span.End()

	if bridged.Status != sentry.SpanStatusInternalError {
		t.Errorf("bridged span status = %v, want internal error", bridged.Status)
	}
}

func TestSpanProcessor_ChildSpan(t *testing.T) {
	setupBridge(t, true)

	m := spanmap.New()
	tracer := localTracer(m)

	ctx, parent := tracer.Start(context.Background(), "parent")
	_, child := tracer.Start(ctx, "child")

	bridgedParent, _ := m.Get(parent.SpanContext().SpanID())
	bridgedChild, ok := m.Get(child.SpanContext().SpanID())
	if !ok {
		t.Fatal("no mapping recorded for child span")
	}
	if bridgedChild.IsTransaction() {
		t.Error("child span became a transaction")
	}
	if bridgedChild.ParentSpanID != bridgedParent.SpanID {
		t.Errorf("child parent = %s, want %s", bridgedChild.ParentSpanID, bridgedParent.SpanID)
	}

	child.End()
	parent.End()
	if m.Len() != 0 {
		t.Errorf("span map not drained: %d entries", m.Len())
	}
}

func TestSpanProcessor_RemoteParentStartsTransaction(t *testing.T) {
	setupBridge(t, true)

	m := spanmap.New()
	tracer := localTracer(m)

	remote := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), remote)

	_, span := tracer.Start(ctx, "incoming")
	bridged, ok := m.Get(span.SpanContext().SpanID())
	if !ok {
		t.Fatal("no mapping recorded")
	}
	if !bridged.IsTransaction() {
		t.Error("span with remote parent did not become a transaction")
	}
	if bridged.ParentSpanID != sentry.SpanID(remote.SpanID()) {
		t.Errorf("parent span ID = %s, want remote %s", bridged.ParentSpanID, remote.SpanID())
	}
	if bridged.TraceID != sentry.TraceID(remote.TraceID()) {
		t.Errorf("trace ID = %s, want continued %s", bridged.TraceID, remote.TraceID())
	}
	span.End()
}

func TestSpanProcessor_NoClientIsNoop(t *testing.T) {
	sentry.CurrentHub().BindClient(nil)
	bridgeSpans.Clear()

	m := spanmap.New()
	tracer := localTracer(m)

	_, span := tracer.Start(context.Background(), "op")
	if m.Len() != 0 {
		t.Errorf("processor recorded %d spans without a client", m.Len())
	}
	span.End()
}

func TestSpanProcessor_ForceFlushExpiredDeadline(t *testing.T) {
	setupBridge(t, true)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	// An already-expired deadline must flush with a zero timeout, not a
	// negative one.
	if err := NewSpanProcessor().ForceFlush(ctx); err != nil {
		t.Fatalf("ForceFlush() error: %v", err)
	}
}

func TestSpanStatus(t *testing.T) {
	tests := []struct {
		code codes.Code
		want sentry.SpanStatus
	}{
		{codes.Error, sentry.SpanStatusInternalError},
		{codes.Ok, sentry.SpanStatusOK},
		{codes.Unset, sentry.SpanStatusOK},
	}
	for _, tt := range tests {
		if got := spanStatus(tt.code); got != tt.want {
			t.Errorf("spanStatus(%v) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestApplyBridgeAttributes(t *testing.T) {
	span := &sentry.Span{}
	applyBridgeAttributes(span, []attribute.KeyValue{
		opAttrKey.String("db.query"),
		descriptionAttrKey.String("SELECT 1"),
		attribute.String("unrelated", "ignored"),
	})
	if span.Op != "db.query" {
		t.Errorf("Op = %q, want db.query", span.Op)
	}
	if span.Description != "SELECT 1" {
		t.Errorf("Description = %q, want SELECT 1", span.Description)
	}
}
