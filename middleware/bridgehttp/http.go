// Package bridgehttp wires the error boundary and the span bridge into
// an HTTP server's request pipeline.
//
// The middleware gives every request its own Sentry hub, attaches the
// request to the scope, traces the request through otelhttp (which the
// bridge processor mirrors into a Sentry transaction), and forwards
// panics to Sentry through the error boundary:
//
//	mux.HandleFunc("/api", handler)
//	srv := http.Server{Handler: bridgehttp.Handler(mux, "my-service")}
package bridgehttp

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/telamonlabs/otelsentry/middleware/bridgehttp"

// mechanismTag is the fixed category label attached to every exception
// captured by the error boundary.
const mechanismTag = "http.server"

// CaptureError is the error boundary hook. A recognized error value is
// forwarded to Sentry's exception-capture path together with the
// request and the fixed mechanism label; any other value goes to the
// generic capture path without metadata. Capture failures are the
// Sentry client's concern; there are no retries here.
func CaptureError(v any, r *http.Request) {
	hub := sentry.GetHubFromContext(r.Context())
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	if err, ok := v.(error); ok {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetRequest(r)
			scope.SetTag("mechanism", mechanismTag)
			hub.CaptureException(err)
		})
		return
	}
	hub.Recover(v)
}

// Handler wraps an http.Handler with hub isolation, request tracing,
// and the panic boundary. Each request runs on a clone of the current
// hub with the request attached to its scope, inside an otelhttp span
// named after operation.
func Handler(next http.Handler, operation string, opts ...Option) http.Handler {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(o)
	}

	meter := otel.Meter(scopeName)
	requests, _ := meter.Int64Counter("http.server.requests",
		metric.WithDescription("Requests handled by the bridge middleware."))
	panics, _ := meter.Int64Counter("http.server.recovered_panics",
		metric.WithDescription("Panics recovered and forwarded to Sentry."))

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub()
		}

		ctx := r.Context()
		requests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("http.request.method", r.Method),
		))

		defer func() {
			if v := recover(); v != nil {
				panics.Add(ctx, 1)
				CaptureError(v, r)
				if o.flushTimeout > 0 {
					hub.Flush(o.flushTimeout)
				}
				if o.repanic {
					panic(v)
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})

	traced := otelhttp.NewHandler(inner, operation)

	// The hub must be on the context before otelhttp starts the server
	// span, or the bridged transaction captures through the shared hub
	// and misses the request scope.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
			r = r.WithContext(sentry.SetHubOnContext(r.Context(), hub))
		}
		hub.Scope().SetRequest(r)
		traced.ServeHTTP(w, r)
	})
}

// --- Options ---

type options struct {
	repanic      bool
	flushTimeout time.Duration
}

func defaultOptions() *options {
	return &options{repanic: false, flushTimeout: 2 * time.Second}
}

// Option configures the middleware.
type Option interface {
	apply(*options)
}

type repanicOption bool

func (v repanicOption) apply(o *options) { o.repanic = bool(v) }

// WithRepanic controls whether a recovered panic is re-raised after
// capture. When disabled (the default) the middleware answers with a
// plain 500.
func WithRepanic(repanic bool) Option { return repanicOption(repanic) }

type flushTimeoutOption time.Duration

func (v flushTimeoutOption) apply(o *options) { o.flushTimeout = time.Duration(v) }

// WithFlushTimeout bounds how long a capture may block on event
// delivery before the response is written. Zero disables the flush.
func WithFlushTimeout(d time.Duration) Option { return flushTimeoutOption(d) }
