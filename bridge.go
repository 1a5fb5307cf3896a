package otelsentry

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"

	internalotel "github.com/telamonlabs/otelsentry/internal/otel"
)

// Bridge is the configured otelsentry instance. It owns the OTel
// providers it installed and knows how to shut them down; the Sentry
// client itself lives on the current hub, where the rest of the SDK
// expects it.
//
// Example:
//
//	bridge, warnings, err := otelsentry.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, w := range warnings {
//	    log.Printf("otelsentry warning: %v", w)
//	}
//	defer bridge.Shutdown(context.Background())
type Bridge struct {
	serviceName    string
	version        string
	tracerProvider *internalotel.TracerProvider
	meterProvider  *internalotel.MeterProvider
	tracingEnabled bool
}

// Warning represents a non-fatal initialization issue. New returns
// warnings instead of failing when optional components (OTLP export,
// metrics) cannot be initialized.
type Warning struct {
	Component string // "tracing", "metrics"
	Err       error
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s: %v", w.Component, w.Err)
}

// New initializes the Sentry client and, when tracing is enabled,
// installs a global tracer provider carrying the bridge span
// processor.
//
// Returns:
//   - *Bridge: working instance unless the error is non-nil
//   - []Warning: non-fatal issues (e.g. OTLP collector unreachable)
//   - error: fatal configuration errors (e.g. malformed DSN)
func New(cfg Config) (*Bridge, []Warning, error) {
	tracesSampleRate := 0.0
	if cfg.Tracing.Enabled {
		// The OTel sampler decides; Sentry keeps whatever it admits.
		tracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		Debug:            cfg.Debug,
		SampleRate:       cfg.SampleRate,
		EnableTracing:    cfg.Tracing.Enabled,
		TracesSampleRate: tracesSampleRate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init sentry client: %w", err)
	}

	var warnings []Warning
	bridge := &Bridge{
		serviceName: cfg.ServiceName,
		version:     cfg.Version,
	}

	if cfg.Tracing.Enabled {
		tracerCfg := internalotel.TracerConfig{
			Sampler:        cfg.Tracing.Sampler,
			Endpoint:       cfg.Tracing.Endpoint,
			Protocol:       cfg.Tracing.Protocol,
			Insecure:       cfg.Tracing.Insecure,
			Headers:        cfg.Tracing.Headers,
			Timeout:        cfg.Tracing.Timeout,
			BatchSize:      cfg.Tracing.BatchSize,
			ExportInterval: cfg.Tracing.ExportInterval,
			Attributes:     cfg.Tracing.Attributes,
		}

		tp, err := internalotel.SetupTracer(tracerCfg, cfg.ServiceName, cfg.Version, NewSpanProcessor())
		if err != nil {
			warnings = append(warnings, Warning{
				Component: "tracing",
				Err:       fmt.Errorf("%w (spans flow to Sentry only)", err),
			})
		}
		if tp != nil {
			bridge.tracerProvider = tp
			bridge.tracingEnabled = true
		}
	}

	if cfg.Metrics.Enabled {
		meterCfg := internalotel.MeterConfig{
			Endpoint: cfg.Metrics.Endpoint,
			Protocol: cfg.Metrics.Protocol,
			Insecure: cfg.Metrics.Insecure,
			Headers:  cfg.Metrics.Headers,
			Timeout:  cfg.Metrics.Timeout,
			Interval: cfg.Metrics.Interval,
		}

		mp, err := internalotel.SetupMeter(meterCfg, cfg.ServiceName, cfg.Version)
		if err != nil {
			warnings = append(warnings, Warning{
				Component: "metrics",
				Err:       fmt.Errorf("%w (metrics disabled)", err),
			})
		} else if mp != nil {
			bridge.meterProvider = mp
		}
	}

	return bridge, warnings, nil
}

// TracingEnabled reports whether this instance installed a tracer
// provider.
func (b *Bridge) TracingEnabled() bool {
	return b.tracingEnabled
}

// Shutdown flushes buffered Sentry events and shuts down the installed
// providers.
func (b *Bridge) Shutdown(ctx context.Context) error {
	var firstErr error

	if hub := sentry.CurrentHub(); hub.Client() != nil {
		hub.Flush(shutdownFlushTimeout)
	}

	if b.tracerProvider != nil {
		if err := b.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}

	if b.meterProvider != nil {
		if err := b.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
