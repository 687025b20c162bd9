// Package telemetry provides OpenTelemetry tracing setup and span helpers.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/contentrelay/internal/content"
)

const instrumentationPrefix = "github.com/JakeFAU/contentrelay/"

// Exporter names accepted by NewExporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// NewExporter builds a span exporter by name. "none" returns nil, which
// keeps spans in-process only.
func NewExporter(name string, w io.Writer) (sdktrace.SpanExporter, error) {
	switch name {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("stdout exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", name)
	}
}

// InitTracerProvider installs the global tracer provider and propagators.
// A nil exporter records spans without exporting them.
func InitTracerProvider(ctx context.Context, serviceName string, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}

// Tracer returns the tracer for a subsystem from the global provider.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + component)
}

// StartFetch opens a span for one fetch of kind.
func StartFetch(ctx context.Context, kind string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer(kind).Start(ctx, kind+".fetch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(append([]attribute.KeyValue{attribute.String("content.kind", kind)}, attrs...)...),
	)
}

// EndFetch records the outcome on span and ends it. A nil failure means success.
func EndFetch(span trace.Span, source string, failure *content.Failure) {
	if source != "" {
		span.SetAttributes(attribute.String("content.source", source))
	}
	if failure != nil {
		span.SetAttributes(attribute.String("content.error_type", string(failure.ErrorType)))
		span.SetStatus(codes.Error, failure.Error)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
