package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Endpoint is the collector one signal is pushed to. A signal with neither
// endpoint set is not exported.
type Endpoint struct {
	// Grpc takes precedence over Http when both are set.
	Grpc    string            `json:"grpc_endpoint"`
	Http    string            `json:"http_endpoint"`
	Headers map[string]string `json:"headers"`
}

const (
	transportNone = ""
	transportGrpc = "grpc"
	transportHttp = "http"
)

func (e Endpoint) transport() string {
	switch {
	case e.Grpc != "":
		return transportGrpc
	case e.Http != "":
		return transportHttp
	}
	return transportNone
}

type OtlpConfig struct {
	Traces  Endpoint `json:"traces"`
	Metrics Endpoint `json:"metrics"`
}

type Config struct {
	Otlp OtlpConfig `json:"otlp"`
	// MetricInterval is how often metrics are pushed, defaults to 30s.
	MetricInterval string `json:"metric_interval"`
}

func (c Config) metricInterval() time.Duration {
	d, err := time.ParseDuration(c.MetricInterval)
	if err != nil || d <= 0 {
		return time.Second * 30
	}
	return d
}

// exporterTimeout bounds the initial connection of each exporter.
const exporterTimeout = 3 * time.Second

func newResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	r, err := resource.New(
		ctx,
		resource.WithHost(),
		resource.WithProcessPID(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}
	return resource.Merge(resource.Default(), r)
}

func newTraceProvider(ctx context.Context, r *resource.Resource, e Endpoint) (*trace.TracerProvider, error) {
	opts := []trace.TracerProviderOption{trace.WithResource(r)}

	var exporter trace.SpanExporter
	var err error
	ctx, cancel := context.WithTimeout(ctx, exporterTimeout)
	defer cancel()
	switch e.transport() {
	case transportGrpc:
		exporter, err = otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpointURL(e.Grpc),
			otlptracegrpc.WithHeaders(e.Headers),
		)
	case transportHttp:
		exporter, err = otlptracehttp.New(
			ctx,
			otlptracehttp.WithEndpointURL(e.Http),
			otlptracehttp.WithHeaders(e.Headers),
		)
	}
	if err != nil {
		return nil, err
	}
	if exporter != nil {
		opts = append(opts, trace.WithBatcher(exporter))
	}
	logExport("traces", e)

	return trace.NewTracerProvider(opts...), nil
}

func newMetricProvider(ctx context.Context, r *resource.Resource, e Endpoint, interval time.Duration) (*metric.MeterProvider, error) {
	opts := []metric.Option{metric.WithResource(r)}

	var exporter metric.Exporter
	var err error
	ctx, cancel := context.WithTimeout(ctx, exporterTimeout)
	defer cancel()
	switch e.transport() {
	case transportGrpc:
		exporter, err = otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpointURL(e.Grpc),
			otlpmetricgrpc.WithHeaders(e.Headers),
		)
	case transportHttp:
		exporter, err = otlpmetrichttp.New(
			ctx,
			otlpmetrichttp.WithEndpointURL(e.Http),
			otlpmetrichttp.WithHeaders(e.Headers),
		)
	}
	if err != nil {
		return nil, err
	}
	if exporter != nil {
		opts = append(opts, metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(interval))))
	}
	logExport("metrics", e)

	return metric.NewMeterProvider(opts...), nil
}

func logExport(signal string, e Endpoint) {
	transport := e.transport()
	if transport == transportNone {
		slog.Info("otlp export disabled", "signal", signal)
		return
	}
	endpoint := e.Grpc
	if transport == transportHttp {
		endpoint = e.Http
	}
	slog.Info(
		"otlp export initialized",
		"signal", signal,
		"transport", transport,
		"endpoint", endpoint,
		"headers", len(e.Headers) > 0,
	)
}
