// Package logging builds the zap logger used by binaries shipped with
// the bridge. Output goes to the console, optionally to a rotated file
// (lumberjack), and optionally to an OTLP collector through the
// otelzap core.
package logging

import (
	"context"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	internalotel "github.com/telamonlabs/otelsentry/internal/otel"
)

// Config mirrors the public LoggingConfig for internal use.
type Config struct {
	Level          string
	Development    bool
	FilePath       string
	FileMaxSizeMB  int
	FileMaxBackups int
	OTLPEndpoint   string
	OTLPProtocol   string
	OTLPInsecure   bool
}

// ShutdownFunc flushes the logger and shuts down OTLP log export.
type ShutdownFunc func(ctx context.Context) error

// Build constructs the logger from the provided configuration. The
// returned ShutdownFunc must be called before exit.
func Build(cfg Config, serviceName, version string) (*zap.Logger, ShutdownFunc, error) {
	level := parseLevel(cfg.Level)
	cores := make([]zapcore.Core, 0, 3)

	cores = append(cores, consoleCore(cfg, level))

	if cfg.FilePath != "" {
		cores = append(cores, fileCore(cfg, level))
	}

	var logProvider *internalotel.LogProvider
	if cfg.OTLPEndpoint != "" {
		provider, err := internalotel.SetupLogs(internalotel.LogConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
		}, serviceName, version)
		if err != nil {
			return nil, nil, err
		}
		if provider != nil {
			logProvider = provider
			cores = append(cores, otelzap.NewCore(
				serviceName,
				otelzap.WithLoggerProvider(provider.LoggerProvider()),
			))
		}
	}

	opts := []zap.Option{}
	if cfg.Development {
		opts = append(opts, zap.AddCaller(), zap.Development())
	}
	logger := zap.New(zapcore.NewTee(cores...), opts...)

	shutdown := func(ctx context.Context) error {
		_ = logger.Sync()
		return logProvider.Shutdown(ctx)
	}
	return logger, shutdown, nil
}

func consoleCore(cfg Config, level zapcore.Level) zapcore.Core {
	var encoder zapcore.Encoder
	if cfg.Development {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	return zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
}

func fileCore(cfg Config, level zapcore.Level) zapcore.Core {
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.FileMaxSizeMB,
		MaxBackups: cfg.FileMaxBackups,
		Compress:   true,
	})
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zapcore.NewCore(encoder, writer, level)
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
