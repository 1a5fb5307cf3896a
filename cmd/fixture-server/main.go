// Command fixture-server runs an HTTP server that exercises the
// otelsentry bridge end to end: traced handlers, manual spans, and the
// panic boundary. It exists for integration testing against a real
// Sentry project or OTLP collector.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/telamonlabs/otelsentry"
	"github.com/telamonlabs/otelsentry/internal/logging"
	"github.com/telamonlabs/otelsentry/middleware/bridgehttp"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fixture-server",
		Short:         "HTTP fixture exercising the otelsentry bridge",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          run,
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.String("dsn", "", "Sentry DSN (empty disables delivery)")
	flags.String("environment", "development", "Sentry environment tag")
	flags.String("sampler", "always", `trace sampler: "always", "never" or "ratio:<f>"`)
	flags.String("otlp-endpoint", "", "optional OTLP collector endpoint for spans")
	flags.Bool("otlp-insecure", true, "disable TLS for the OTLP connection")
	flags.String("env-file", "", "path to a .env file loaded at startup")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Bool("log-dev", false, "pretty development log output")
	flags.String("log-file", "", "optional rotated log file path")

	viper.SetEnvPrefix("FIXTURE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(flags)

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	if envFile := viper.GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return err
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := otelsentry.Default().
		WithService("fixture-server", version).
		WithTracing().
		WithDSN(viper.GetString("dsn"))
	cfg.Environment = viper.GetString("environment")
	cfg.Tracing.Sampler = viper.GetString("sampler")
	cfg.Tracing.Endpoint = viper.GetString("otlp-endpoint")
	cfg.Tracing.Insecure = viper.GetBool("otlp-insecure")
	cfg.Logging.Level = viper.GetString("log-level")
	cfg.Logging.Development = viper.GetBool("log-dev")
	cfg.Logging.FilePath = viper.GetString("log-file")

	logger, logShutdown, err := logging.Build(logging.Config{
		Level:          cfg.Logging.Level,
		Development:    cfg.Logging.Development,
		FilePath:       cfg.Logging.FilePath,
		FileMaxSizeMB:  cfg.Logging.FileMaxSizeMB,
		FileMaxBackups: cfg.Logging.FileMaxBackups,
	}, cfg.ServiceName, cfg.Version)
	if err != nil {
		return err
	}

	bridge, warnings, err := otelsentry.New(cfg)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logger.Warn("degraded startup", zap.String("component", w.Component), zap.Error(w.Err))
	}

	router := mux.NewRouter()
	router.HandleFunc("/", defaultHandler).Methods(http.MethodGet)
	router.HandleFunc("/work", workHandler).Methods(http.MethodGet)
	router.HandleFunc("/error", errorHandler).Methods(http.MethodGet)
	router.HandleFunc("/boom", boomHandler).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              viper.GetString("addr"),
		Handler:           bridgehttp.Handler(router, "fixture-server"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("fixture server listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err = <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if berr := bridge.Shutdown(shutdownCtx); err == nil {
		err = berr
	}
	_ = logShutdown(shutdownCtx)
	return err
}

// defaultHandler renders the request back as JSON: status, selected
// headers, and a render context, the way a framework's default
// document handler would.
func defaultHandler(w http.ResponseWriter, r *http.Request) {
	span := otelsentry.ActiveSpan(r.Context())

	render := map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": http.StatusOK,
		"headers": map[string]string{
			"user-agent": r.UserAgent(),
			"accept":     r.Header.Get("Accept"),
		},
	}
	if span != nil {
		render["trace_id"] = span.TraceID.String()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(render)
}

// workHandler exercises all three bridge entry points on one request.
func workHandler(w http.ResponseWriter, r *http.Request) {
	err := otelsentry.WithSpan(r.Context(), otelsentry.SpanConfig{
		Name:     "fixture.work",
		Op:       "function",
		Metadata: map[string]any{"fixture": true},
	}, func(ctx context.Context, span *sentry.Span) error {
		manual := otelsentry.StartInactiveSpan(ctx, otelsentry.SpanConfig{
			Description: "manual bookkeeping",
			Op:          "queue.task",
		})
		time.Sleep(5 * time.Millisecond)
		if manual != nil {
			manual.Finish()
		}

		async := otelsentry.GoSpan(ctx, otelsentry.SpanConfig{Op: "background"}, func(ctx context.Context, _ *sentry.Span) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		})
		return <-async
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("done\n"))
}

// errorHandler throws a recognized error through the boundary.
func errorHandler(http.ResponseWriter, *http.Request) {
	panic(errors.New("fixture: deliberate failure"))
}

// boomHandler throws a value that is not an error.
func boomHandler(http.ResponseWriter, *http.Request) {
	panic("fixture: deliberate non-error panic")
}
