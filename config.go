package otelsentry

import "time"

// Config holds the complete bridge configuration.
type Config struct {
	// DSN is the Sentry project DSN. Empty disables event delivery
	// (the client still runs, which is useful in tests).
	DSN string `yaml:"dsn" json:"dsn" env:"SENTRY_DSN"`

	// Environment tags all events (e.g. "production", "staging").
	Environment string `yaml:"environment" json:"environment" env:"SENTRY_ENVIRONMENT"`

	// Release tags all events with the application release.
	Release string `yaml:"release" json:"release" env:"SENTRY_RELEASE"`

	// Debug enables the Sentry SDK's own debug output.
	Debug bool `yaml:"debug" json:"debug" env:"SENTRY_DEBUG"`

	// SampleRate is the error-event sample rate in [0.0, 1.0].
	// Default: 1.0
	SampleRate float64 `yaml:"sample_rate" json:"sample_rate"`

	// ServiceName identifies this service in trace resources.
	// Default: "unknown"
	ServiceName string `yaml:"service_name" json:"service_name" env:"SERVICE_NAME"`

	// Version is the application version, included in trace resources.
	Version string `yaml:"version" json:"version" env:"SERVICE_VERSION"`

	// Tracing configures the OpenTelemetry side of the bridge.
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`

	// Metrics configures optional OTLP metric export.
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configures the zap logger built by the fixture server.
	// The bridge library itself does not log.
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// TracingConfig configures span creation and optional OTLP export.
//
// Sampling is decided by the OTel sampler; when tracing is enabled the
// Sentry client is configured with TracesSampleRate 1.0 so that every
// span the sampler admits is kept by Sentry.
type TracingConfig struct {
	// Enabled turns the span bridge on. When false, no tracer provider
	// is installed and all bridge entry points return absent spans.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Sampler selects the OTel sampler: "always", "never" or "ratio:<f>".
	// Default: "always"
	Sampler string `yaml:"sampler" json:"sampler"`

	// Endpoint is an optional OTLP collector endpoint. When empty,
	// spans flow only to Sentry through the bridge processor.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Protocol: "grpc" or "http".
	// Default: "grpc"
	Protocol string `yaml:"protocol" json:"protocol"`

	// Insecure disables TLS for the OTLP connection.
	Insecure bool `yaml:"insecure" json:"insecure"`

	// Headers are additional headers for the OTLP exporter.
	Headers map[string]string `yaml:"headers" json:"headers"`

	// Timeout is the export timeout. Default: 10s
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// BatchSize is the number of spans per export batch. Default: 512
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// ExportInterval is how often to export batched spans. Default: 5s
	ExportInterval time.Duration `yaml:"export_interval" json:"export_interval"`

	// Attributes are additional resource attributes.
	Attributes map[string]string `yaml:"attributes" json:"attributes"`
}

// MetricsConfig configures OTLP metric export.
type MetricsConfig struct {
	// Enabled turns metric export on. Requires Endpoint.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Endpoint is the OTLP collector endpoint.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Protocol: "grpc" or "http". Default: "grpc"
	Protocol string `yaml:"protocol" json:"protocol"`

	// Insecure disables TLS for the connection.
	Insecure bool `yaml:"insecure" json:"insecure"`

	// Headers are additional headers for the exporter.
	Headers map[string]string `yaml:"headers" json:"headers"`

	// Timeout is the export timeout. Default: 10s
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Interval is the periodic reader interval. Default: 15s
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// LoggingConfig configures the zap logger used by binaries built on
// the bridge (see internal/logging).
type LoggingConfig struct {
	// Level sets the minimum log level: debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level" json:"level" env:"LOG_LEVEL"`

	// Development enables pretty console output and caller info.
	Development bool `yaml:"development" json:"development" env:"LOG_DEVELOPMENT"`

	// FilePath enables file output with rotation when non-empty.
	FilePath string `yaml:"file_path" json:"file_path"`

	// FileMaxSizeMB is the maximum size in MB before rotation.
	// Default: 100
	FileMaxSizeMB int `yaml:"file_max_size_mb" json:"file_max_size_mb"`

	// FileMaxBackups is the maximum number of old log files to keep.
	// Default: 5
	FileMaxBackups int `yaml:"file_max_backups" json:"file_max_backups"`

	// OTLPEndpoint enables OTLP log export when non-empty.
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`

	// OTLPProtocol: "grpc" or "http". Default: "grpc"
	OTLPProtocol string `yaml:"otlp_protocol" json:"otlp_protocol"`

	// OTLPInsecure disables TLS for the log export connection.
	OTLPInsecure bool `yaml:"otlp_insecure" json:"otlp_insecure"`
}

// Default returns a Config with sensible production defaults.
func Default() Config {
	return Config{
		SampleRate:  1.0,
		ServiceName: "unknown",
		Tracing: TracingConfig{
			Enabled:        false,
			Sampler:        "always",
			Protocol:       "grpc",
			Timeout:        10 * time.Second,
			BatchSize:      512,
			ExportInterval: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Protocol: "grpc",
			Timeout:  10 * time.Second,
			Interval: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:          "info",
			FileMaxSizeMB:  100,
			FileMaxBackups: 5,
			OTLPProtocol:   "grpc",
		},
	}
}

// WithDSN returns a copy of the config with the Sentry DSN set.
func (c Config) WithDSN(dsn string) Config {
	c.DSN = dsn
	return c
}

// WithService returns a copy of the config with the service identity set.
func (c Config) WithService(name, version string) Config {
	c.ServiceName = name
	c.Version = version
	return c
}

// WithTracing returns a copy of the config with the span bridge enabled.
func (c Config) WithTracing() Config {
	c.Tracing.Enabled = true
	return c
}

// WithOTLP returns a copy of the config exporting spans to an OTLP
// collector in addition to Sentry.
func (c Config) WithOTLP(endpoint string) Config {
	c.Tracing.Endpoint = endpoint
	return c
}
