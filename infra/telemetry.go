package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tnqbao/gau-vm-session-service/config"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type TelemetryClient struct {
	shutdowns []func(context.Context) error
}

// InitTelemetry installs global trace, metric and log providers exporting to the
// configured OTLP endpoint. Without an endpoint the OpenTelemetry no-op globals stay in place.
func InitTelemetry(ctx context.Context, cfg *config.EnvConfig) (*TelemetryClient, error) {
	t := &TelemetryClient{}
	if cfg.Grafana.OTLPEndpoint == "" {
		return t, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.Grafana.ServiceName),
		semconv.DeploymentEnvironment(cfg.Environment.Mode),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build otel resource: %w", err)
	}

	traceExporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Grafana.OTLPEndpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	t.shutdowns = append(t.shutdowns, tracerProvider.Shutdown)

	metricExporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Grafana.OTLPEndpoint))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create metric exporter: %w", err), t.Shutdown(ctx))
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)
	t.shutdowns = append(t.shutdowns, meterProvider.Shutdown)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to start runtime instrumentation: %w", err), t.Shutdown(ctx))
	}

	logExporter, err := otlploghttp.New(ctx, otlploghttp.WithEndpoint(cfg.Grafana.OTLPEndpoint))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create log exporter: %w", err), t.Shutdown(ctx))
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(loggerProvider)
	t.shutdowns = append(t.shutdowns, loggerProvider.Shutdown)

	return t, nil
}

// Shutdown flushes providers in reverse order of installation.
func (t *TelemetryClient) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		errs = append(errs, t.shutdowns[i](ctx))
	}
	t.shutdowns = nil
	return errors.Join(errs...)
}
