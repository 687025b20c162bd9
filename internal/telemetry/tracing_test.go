package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/JakeFAU/contentrelay/internal/content"
)

func TestNewExporter(t *testing.T) {
	t.Parallel()

	exp, err := NewExporter(ExporterNone, nil)
	require.NoError(t, err)
	assert.Nil(t, exp)

	var buf bytes.Buffer
	exp, err = NewExporter(ExporterStdout, &buf)
	require.NoError(t, err)
	assert.NotNil(t, exp)

	_, err = NewExporter("zipkin", nil)
	require.Error(t, err)
}

func TestFetchSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tracer := tp.Tracer("test")
	_, ok := tracer.Start(context.Background(), "page.fetch")
	EndFetch(ok, "browser", nil)

	_, failed := tracer.Start(context.Background(), "social.fetch")
	EndFetch(failed, "", &content.Failure{Error: "login required", ErrorType: content.ErrTypeBlocked})

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("content.source", "browser"))

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "login required", spans[1].Status().Description)
	assert.Contains(t, spans[1].Attributes(), attribute.String("content.error_type", "BLOCKED"))
}

func TestInitTracerProvider(t *testing.T) {
	t.Parallel()

	tp, err := InitTracerProvider(context.Background(), "contentrelay-test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := StartFetch(context.Background(), content.KindPage)
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}
