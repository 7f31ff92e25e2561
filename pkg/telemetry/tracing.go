package telemetry

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "usdc-bridge"

// InitTracer installs an OTLP/HTTP tracer provider. With an empty endpoint the
// global no-op provider stays in place. The returned func flushes and shuts down.
func InitTracer(ctx context.Context, endpoint string) (func(), error) {
	if endpoint == "" {
		return func() {}, nil
	}

	client := otlptracehttp.NewClient(endpointOptions(endpoint)...)

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return func() {}, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}

// tracesPath is appended to a base collector URL without a path
const tracesPath = "/v1/traces"

// endpointOptions accepts a collector URL such as http://localhost:4318 or a bare
// host:port, which is exported to without TLS
func endpointOptions(endpoint string) []otlptracehttp.Option {
	if u, err := url.Parse(endpoint); err == nil && strings.Contains(endpoint, "://") {
		if strings.Trim(u.Path, "/") == "" {
			u.Path = tracesPath
		}
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(u.String())}
	}
	return []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	}
}

// Tracer returns the application tracer
func Tracer() trace.Tracer {
	return otel.Tracer(serviceName)
}

// EndSpan records err on the span, if any, and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
