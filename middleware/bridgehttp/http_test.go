package bridgehttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	r "github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/telamonlabs/otelsentry"
	"github.com/telamonlabs/otelsentry/internal/spanmap"
)

type captureTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *captureTransport) Configure(sentry.ClientOptions) {}

func (t *captureTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *captureTransport) Flush(time.Duration) bool { return true }

func (t *captureTransport) FlushWithContext(context.Context) bool { return true }

func (t *captureTransport) Close() {}

func (t *captureTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func bindClient(t *testing.T) *captureTransport {
	t.Helper()
	transport := &captureTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{Transport: transport})
	r.NoError(t, err)
	sentry.CurrentHub().BindClient(client)
	t.Cleanup(func() { sentry.CurrentHub().BindClient(nil) })
	return transport
}

func TestCaptureError_ErrorUsesExceptionPath(t *testing.T) {
	transport := bindClient(t)
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)

	CaptureError(errors.New("database gone"), req)

	events := transport.Events()
	r.Len(t, events, 1)
	r.NotEmpty(t, events[0].Exception)
	r.Equal(t, "database gone", events[0].Exception[len(events[0].Exception)-1].Value)
	r.NotNil(t, events[0].Request)
	r.Contains(t, events[0].Request.URL, "/orders")
	r.Equal(t, mechanismTag, events[0].Tags["mechanism"])
}

func TestCaptureError_NonErrorUsesGenericPath(t *testing.T) {
	transport := bindClient(t)
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)

	CaptureError("weird failure", req)

	events := transport.Events()
	r.Len(t, events, 1)
	r.Empty(t, events[0].Exception)
	r.Equal(t, "weird failure", events[0].Message)
	// Generic path carries no request metadata.
	r.Empty(t, events[0].Tags["mechanism"])
}

func TestHandler_PassesThrough(t *testing.T) {
	bindClient(t)

	handler := Handler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// The hub must be isolated per request.
		r.NotNil(t, sentry.GetHubFromContext(req.Context()))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}), "test-server")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	r.Equal(t, http.StatusOK, rec.Code)
	r.Equal(t, "OK", rec.Body.String())
}

func TestHandler_RecoversPanicAndReports(t *testing.T) {
	transport := bindClient(t)

	handler := Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("handler exploded"))
	}), "test-server")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/kaboom", nil))

	r.Equal(t, http.StatusInternalServerError, rec.Code)

	events := transport.Events()
	r.Len(t, events, 1)
	r.NotEmpty(t, events[0].Exception)
	r.NotNil(t, events[0].Request)
	r.Contains(t, events[0].Request.URL, "/kaboom")
}

func TestHandler_TransactionCarriesRequestScope(t *testing.T) {
	transport := &captureTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Transport:        transport,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
	})
	r.NoError(t, err)
	sentry.CurrentHub().BindClient(client)
	t.Cleanup(func() { sentry.CurrentHub().BindClient(nil) })

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(otelsentry.NewSpanProcessor(otelsentry.WithSpanMap(spanmap.New()))),
	))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	handler := Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), "test-server")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/traced", nil))
	r.Equal(t, http.StatusOK, rec.Code)

	// The server span must start on a context that already carries the
	// request hub, so its transaction event captures the request.
	events := transport.Events()
	r.Len(t, events, 1)
	r.Equal(t, "transaction", events[0].Type)
	r.NotNil(t, events[0].Request)
	r.Contains(t, events[0].Request.URL, "/traced")
}

func TestHandler_Repanic(t *testing.T) {
	bindClient(t)

	handler := Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("no recovery")
	}), "test-server", WithRepanic(true))

	r.Panics(t, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
