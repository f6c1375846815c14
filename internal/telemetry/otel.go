package telemetry

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const defaultTracesEndpoint = "http://localhost:4318/v1/traces"

type endpoint struct {
	host     string
	path     string
	insecure bool
}

// parseEndpoint accepts a full URL or the host:port form.
func parseEndpoint(raw string) endpoint {
	ep := endpoint{host: "localhost:4318", path: "/v1/traces", insecure: true}
	if raw == "" {
		raw = defaultTracesEndpoint
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		ep.host = raw
		return ep
	}
	if u, err := url.Parse(raw); err == nil {
		if u.Host != "" {
			ep.host = u.Host
		}
		if u.Path != "" {
			ep.path = u.Path
		}
		ep.insecure = u.Scheme == "http"
	}
	return ep
}

// InitTracer installs the global tracer provider exporting over OTLP/HTTP. The returned
// function flushes and stops it.
func InitTracer(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	ep := parseEndpoint(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"))

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(ep.host),
		otlptracehttp.WithURLPath(ep.path),
	}
	if ep.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(1.0))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Printf("OpenTelemetry initialized for service: %s (endpoint %s%s)", serviceName, ep.host, ep.path)
	return tp.Shutdown, nil
}
