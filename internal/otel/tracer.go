// Package otel wires up the OpenTelemetry SDK providers the bridge
// depends on: the tracer provider carrying the bridge span processor,
// and optional OTLP metric and log export.
package otel

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const setupTimeout = 30 * time.Second

// TracerConfig configures the tracer provider.
type TracerConfig struct {
	Sampler        string
	Endpoint       string
	Protocol       string
	Insecure       bool
	Headers        map[string]string
	Timeout        time.Duration
	BatchSize      int
	ExportInterval time.Duration
	Attributes     map[string]string
}

// TracerProvider wraps the OTEL TracerProvider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// Shutdown shuts down the tracer provider, ending all registered span
// processors.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// SetupTracer builds the tracer provider, registers the given span
// processors, and installs it globally with W3C propagation.
//
// A provider is always returned: the bridge processor must run even
// when the optional OTLP exporter cannot be created. Exporter failures
// come back as a non-nil error alongside the working provider, so the
// caller can degrade with a warning instead of losing tracing.
func SetupTracer(cfg TracerConfig, serviceName, version string, processors ...sdktrace.SpanProcessor) (*TracerProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	res, resErr := buildResource(ctx, serviceName, version, cfg.Attributes)

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(parseSampler(cfg.Sampler)),
	}
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}

	var expErr error
	if cfg.Endpoint != "" {
		exporter, err := createTraceExporter(ctx, cfg)
		if err != nil {
			expErr = fmt.Errorf("failed to create trace exporter: %w", err)
		} else {
			batchSize := cfg.BatchSize
			if batchSize <= 0 {
				batchSize = 512
			}
			exportInterval := cfg.ExportInterval
			if exportInterval <= 0 {
				exportInterval = 5 * time.Second
			}
			opts = append(opts, sdktrace.WithBatcher(exporter,
				sdktrace.WithMaxExportBatchSize(batchSize),
				sdktrace.WithBatchTimeout(exportInterval),
			))
		}
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if expErr == nil {
		expErr = resErr
	}
	return &TracerProvider{provider: tp}, expErr
}

func buildResource(ctx context.Context, serviceName, version string, extra map[string]string) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	}
	for k, v := range extra {
		attrs = append(attrs, attribute.String(k, v))
	}

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		// The provider matters more than the resource.
		return resource.Default(), fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func createTraceExporter(ctx context.Context, cfg TracerConfig) (sdktrace.SpanExporter, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithTimeout(timeout),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithTimeout(timeout),
		}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		return otlptracegrpc.New(ctx, opts...)
	}
}

func parseSampler(s string) sdktrace.Sampler {
	switch {
	case s == "" || s == "always":
		return sdktrace.AlwaysSample()
	case s == "never":
		return sdktrace.NeverSample()
	case strings.HasPrefix(s, "ratio:"):
		ratio, err := strconv.ParseFloat(strings.TrimPrefix(s, "ratio:"), 64)
		if err != nil {
			return sdktrace.AlwaysSample()
		}
		return sdktrace.TraceIDRatioBased(ratio)
	default:
		return sdktrace.AlwaysSample()
	}
}
