package otelsentry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// mockTransport collects events in memory instead of delivering them.
type mockTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *mockTransport) Configure(sentry.ClientOptions) {}

func (t *mockTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *mockTransport) Flush(time.Duration) bool { return true }

func (t *mockTransport) FlushWithContext(context.Context) bool { return true }

func (t *mockTransport) Close() {}

func (t *mockTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

// countingProcessor counts OnStart calls. Used to prove that disabled
// tracing creates no spans at all.
type countingProcessor struct {
	started atomic.Int32
}

func (p *countingProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) { p.started.Add(1) }
func (p *countingProcessor) OnEnd(sdktrace.ReadOnlySpan)                     {}
func (p *countingProcessor) Shutdown(context.Context) error                  { return nil }
func (p *countingProcessor) ForceFlush(context.Context) error                { return nil }

// setupBridge binds a Sentry client with an in-memory transport and
// installs a tracer provider carrying the bridge processor plus any
// extra processors. Both are torn down with the test.
func setupBridge(t *testing.T, enableTracing bool, extra ...sdktrace.SpanProcessor) *mockTransport {
	t.Helper()

	transport := &mockTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Transport:        transport,
		EnableTracing:    enableTracing,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	sentry.CurrentHub().BindClient(client)

	bridgeSpans.Clear()
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(NewSpanProcessor()),
	}
	for _, p := range extra {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(opts...))

	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		sentry.CurrentHub().BindClient(nil)
		bridgeSpans.Clear()
	})
	return transport
}
