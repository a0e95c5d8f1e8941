// Package telemetry bootstraps OpenTelemetry export for the spans the retry
// engine and the isolator emit, and for slog records routed through the
// OpenTelemetry log bridge (see logger.WithOTel).
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amp-labs/amp-resilience/envutil"
	"github.com/amp-labs/amp-resilience/logger"
	"github.com/amp-labs/amp-resilience/shutdown"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const (
	defaultServiceVersion = "1.0.0"
	defaultTimeout        = 5 * time.Second

	// gkeCollectorEndpoint is the in-cluster OpenTelemetry collector.
	gkeCollectorEndpoint = "http://opentelemetry-collector.opentelemetry.svc.cluster.local:4318"
)

//nolint:gochecknoglobals
var (
	mu             sync.Mutex
	tracerProvider *sdktrace.TracerProvider
	loggerProvider *sdklog.LoggerProvider
)

// Config holds the OpenTelemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	LogsEndpoint   string
	Enabled        bool
	Timeout        time.Duration
}

// LoadConfigFromEnv loads OpenTelemetry configuration from environment variables:
//   - OTEL_ENABLED (bool, default false)
//   - OTEL_SERVICE_NAME (default: the logger subsystem)
//   - OTEL_SERVICE_VERSION (default 1.0.0)
//   - OTEL_EXPORTER_OTLP_TRACES_ENDPOINT (default: the in-cluster collector on Kubernetes)
//   - OTEL_EXPORTER_OTLP_LOGS_ENDPOINT (default: the traces endpoint)
//   - OTEL_EXPORTER_OTLP_TRACES_TIMEOUT (default 5s)
func LoadConfigFromEnv(ctx context.Context, runningEnv string) (*Config, error) {
	enabled, err := envutil.Bool(ctx, "OTEL_ENABLED", envutil.Default(false)).Value()
	if err != nil {
		return nil, err
	}

	// Running in Kubernetes, use the collector service.
	defaultEndpoint := ""
	if envutil.String(ctx, "KUBERNETES_SERVICE_HOST").ValueOrElse("") != "" {
		defaultEndpoint = gkeCollectorEndpoint
	}

	svcName, err := envutil.String(ctx, "OTEL_SERVICE_NAME",
		envutil.Default(logger.GetSubsystem(ctx))).Value()
	if err != nil {
		return nil, err
	}

	svcVersion, err := envutil.String(ctx, "OTEL_SERVICE_VERSION",
		envutil.Default(defaultServiceVersion)).
		Value()
	if err != nil {
		return nil, err
	}

	endpoint := envutil.String(ctx, "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT").ValueOrElse("")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	logsEndpoint := envutil.String(ctx, "OTEL_EXPORTER_OTLP_LOGS_ENDPOINT").ValueOrElse("")
	if logsEndpoint == "" {
		logsEndpoint = endpoint
	}

	timeout, err := envutil.Duration(ctx, "OTEL_EXPORTER_OTLP_TRACES_TIMEOUT",
		envutil.Default(defaultTimeout)).
		Value()
	if err != nil {
		return nil, err
	}

	return &Config{
		ServiceName:    svcName,
		ServiceVersion: svcVersion,
		Environment:    runningEnv,
		Endpoint:       endpoint,
		LogsEndpoint:   logsEndpoint,
		Enabled:        enabled,
		Timeout:        timeout,
	}, nil
}

func (c *Config) resource(ctx context.Context) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(c.ServiceName),
			semconv.ServiceVersionKey.String(c.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(c.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return res, nil
}

// Initialize sets up both tracing and log export.
func Initialize(ctx context.Context, config *Config) error {
	if err := InitializeTracing(ctx, config); err != nil {
		return err
	}

	return InitializeLogging(ctx, config)
}

// InitializeTracing installs a global tracer provider that batches spans to
// the OTLP/HTTP endpoint. It is a no-op when tracing is disabled or no
// endpoint is configured.
func InitializeTracing(ctx context.Context, config *Config) error {
	log := logger.Get(ctx)

	if !config.Enabled {
		log.Info("OpenTelemetry tracing is disabled")

		return nil
	}

	if config.Endpoint == "" {
		log.Warn("OpenTelemetry endpoint not configured, tracing will be disabled")

		return nil
	}

	res, err := config.resource(ctx)
	if err != nil {
		return err
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(config.Endpoint),
		otlptracehttp.WithTimeout(config.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	mu.Lock()
	tracerProvider = provider
	mu.Unlock()

	otel.SetTracerProvider(provider)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("OpenTelemetry tracing initialized",
		"service", config.ServiceName,
		"version", config.ServiceVersion,
		"environment", config.Environment,
		"endpoint", config.Endpoint,
	)

	return nil
}

// InitializeLogging installs a global logger provider that batches log
// records to the OTLP/HTTP logs endpoint. Call it before configuring the
// logger with logger.WithOTel.
func InitializeLogging(ctx context.Context, config *Config) error {
	log := logger.Get(ctx)

	if !config.Enabled || config.LogsEndpoint == "" {
		log.Info("OpenTelemetry log export is disabled")

		return nil
	}

	res, err := config.resource(ctx)
	if err != nil {
		return err
	}

	exporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpointURL(config.LogsEndpoint),
		otlploghttp.WithTimeout(config.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	)

	mu.Lock()
	loggerProvider = provider
	mu.Unlock()

	global.SetLoggerProvider(provider)

	log.Info("OpenTelemetry log export initialized",
		"service", config.ServiceName,
		"endpoint", config.LogsEndpoint,
	)

	return nil
}

// Shutdown flushes and shuts down whichever providers were initialized.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp, lp := tracerProvider, loggerProvider
	tracerProvider, loggerProvider = nil, nil
	mu.Unlock()

	var errs []error

	if tp != nil {
		logger.Get(ctx).Info("Shutting down OpenTelemetry tracer provider")

		errs = append(errs, tp.Shutdown(ctx))
	}

	if lp != nil {
		logger.Get(ctx).Info("Shutting down OpenTelemetry logger provider")

		errs = append(errs, lp.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

// FlushOnShutdown registers Shutdown as a hook on h, so buffered spans and
// log records are exported before the process exits.
func FlushOnShutdown(h *shutdown.Handler) {
	h.BeforeShutdown(Shutdown)
}
